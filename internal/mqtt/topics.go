package mqtt

import (
	"fmt"
	"strings"
)

// NodeID is the discovery node id every M.A.C.S. entity is published under.
const NodeID = "macs"

// Topics builds the topic tree of the bridge.
//
//	<discovery>/<kind>/macs/<id>/config   retained discovery payload
//	<base>/<id>/state                      retained entity state
//	<base>/<id>/set                        commands from Home Assistant
//	<base>/service/<name>                  service calls
//	<base>/status                          availability (online/offline)
type Topics struct {
	discovery string
	base      string
}

// NewTopics returns a builder for the given prefixes. Trailing slashes are trimmed.
func NewTopics(discoveryPrefix, baseTopic string) Topics {
	return Topics{
		discovery: strings.TrimRight(discoveryPrefix, "/"),
		base:      strings.TrimRight(baseTopic, "/"),
	}
}

// Discovery returns the retained config topic of an entity.
//
// Example: homeassistant/select/macs/macs_mood/config
func (t Topics) Discovery(kind, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", t.discovery, kind, NodeID, id)
}

// State returns the state topic of an entity.
func (t Topics) State(id string) string {
	return fmt.Sprintf("%s/%s/state", t.base, id)
}

// Command returns the command topic of an entity.
func (t Topics) Command(id string) string {
	return fmt.Sprintf("%s/%s/set", t.base, id)
}

// AllCommands matches every entity command topic.
func (t Topics) AllCommands() string {
	return t.base + "/+/set"
}

// Service returns the topic a named service call is published to.
func (t Topics) Service(name string) string {
	return t.base + "/service/" + name
}

// AllServices matches every service topic.
func (t Topics) AllServices() string {
	return t.base + "/service/+"
}

// Availability returns the bridge availability topic.
func (t Topics) Availability() string {
	return t.base + "/status"
}

// HomeAssistantStatus is Home Assistant's birth/will topic.
func (t Topics) HomeAssistantStatus() string {
	return t.discovery + "/status"
}

// ParseCommand extracts the entity id from a command topic.
func (t Topics) ParseCommand(topic string) (string, bool) {
	return t.middle(topic, t.base+"/", "/set")
}

// ParseService extracts the service name from a service topic.
func (t Topics) ParseService(topic string) (string, bool) {
	return t.middle(topic, t.base+"/service/", "")
}

func (t Topics) middle(topic, prefix, suffix string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return "", false
	}
	rest, ok = strings.CutSuffix(rest, suffix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
