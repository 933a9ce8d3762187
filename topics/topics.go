// Package topics names every bus topic the firmware uses.
package topics

import "kbdcode-go/bus"

// kbd/key types.KeyEvent
func Key() bus.Topic { return bus.T("kbd", "key") }

// hid/key types.HIDEvent
func HIDKey() bus.Topic { return bus.T("hid", "key") }

// keymap/layer/state retained types.LayerState
func LayerState() bus.Topic { return bus.T("keymap", "layer", "state") }

// keymap/layer/to request types.LayerRequest, reply types.LayerReply
func LayerTo() bus.Topic { return bus.T("keymap", "layer", "to") }

// split/peer retained types.PeerState
func SplitPeer() bus.Topic { return bus.T("split", "peer") }

// config/<section>
func Config(section string) bus.Topic { return bus.T("config", section) }

func ConfigAll() bus.Topic { return bus.T("config", bus.WildRest) }
