// Package bridge turns event bus traffic into notifications. A rule table
// maps topic patterns onto priorities and message templates; the first
// enabled rule matching an event's topic wins, its templates render against
// the event payload, and the result goes to the dispatcher. Error events arm
// an escalation re-fire that later start or completion events clear.
package bridge
