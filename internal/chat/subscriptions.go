package chat

import "strings"

const GlobalGroup = "global"

func UserGroup(username string) string   { return "user:" + username }
func ChannelGroup(channelID string) string { return "channel:" + channelID }
func ThreadGroup(threadID string) string   { return "thread:" + threadID }

// Subscriptions is the two-way membership index between clients and groups.
// Only the hub loop touches it.
type Subscriptions struct {
	ClientGroups map[*Client]map[string]bool // client -> set(group)
	GroupClients map[string]map[*Client]bool // group -> set(client)
}

func newSubscriptions() *Subscriptions {
	return &Subscriptions{
		ClientGroups: map[*Client]map[string]bool{},
		GroupClients: map[string]map[*Client]bool{},
	}
}

// normalizeID trims an id received from a client; empty means invalid.
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if strings.ContainsAny(id, ": \t\n") {
		return ""
	}
	return id
}

// Join reports whether c was not yet a member.
func (s *Subscriptions) Join(c *Client, group string) bool {
	if s.GroupClients[group][c] {
		return false
	}
	if _, ok := s.ClientGroups[c]; !ok {
		s.ClientGroups[c] = map[string]bool{}
	}
	s.ClientGroups[c][group] = true

	if _, ok := s.GroupClients[group]; !ok {
		s.GroupClients[group] = map[*Client]bool{}
	}
	s.GroupClients[group][c] = true
	return true
}

// Leave is idempotent.
func (s *Subscriptions) Leave(c *Client, group string) {
	if groups, ok := s.ClientGroups[c]; ok {
		delete(groups, group)
		if len(groups) == 0 {
			delete(s.ClientGroups, c)
		}
	}
	if members, ok := s.GroupClients[group]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(s.GroupClients, group)
		}
	}
}

// LeaveAll removes c from every group. Idempotent.
func (s *Subscriptions) LeaveAll(c *Client) {
	for group := range s.ClientGroups[c] {
		if members, ok := s.GroupClients[group]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(s.GroupClients, group)
			}
		}
	}
	delete(s.ClientGroups, c)
}

// Members returns the union of the members of groups, each client once.
func (s *Subscriptions) Members(groups ...string) []*Client {
	seen := map[*Client]bool{}
	var out []*Client
	for _, g := range groups {
		for c := range s.GroupClients[g] {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
