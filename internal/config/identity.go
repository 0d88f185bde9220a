package config

import "fmt"

// GroupIdentity is the derived (group_id, group_instance_id) pair that
// gives a subscriber its consumer-group membership. Two subscribers for
// the same (topic, function) share GroupID, so the broker balances
// partitions across them, but each has a distinct GroupInstanceID, making
// it a static member.
type GroupIdentity struct {
	GroupID         string
	GroupInstanceID string
}

// DeriveIdentity computes the identity for one (topic, function, slot)
// triple, per P8: group_id = "T-F", group_instance_id = "T-F-s".
func DeriveIdentity(topic, function string, slot int) GroupIdentity {
	groupID := fmt.Sprintf("%s-%s", topic, function)
	return GroupIdentity{
		GroupID:         groupID,
		GroupInstanceID: fmt.Sprintf("%s-%d", groupID, slot),
	}
}
