package server

import (
	"sort"

	"github.com/NicolasHaas/caserelay/pkg/model"
)

// roleIndex tracks which connections are registered under each role.
// It has no lock of its own; Registry.mu guards it.
type roleIndex struct {
	members map[model.Role]map[ConnID]struct{}
}

func newRoleIndex() *roleIndex {
	return &roleIndex{
		members: make(map[model.Role]map[ConnID]struct{}),
	}
}

// join adds a connection under role, removing it from any previous role.
func (ri *roleIndex) join(id ConnID, role model.Role) (prev model.Role) {
	prev = ri.leave(id)
	if _, ok := ri.members[role]; !ok {
		ri.members[role] = make(map[ConnID]struct{})
	}
	ri.members[role][id] = struct{}{}
	return prev
}

// leave removes a connection from its role and returns that role.
func (ri *roleIndex) leave(id ConnID) model.Role {
	for role, conns := range ri.members {
		if _, ok := conns[id]; ok {
			delete(conns, id)
			if len(conns) == 0 {
				delete(ri.members, role)
			}
			return role
		}
	}
	return ""
}

// connsOf returns every connection registered under role, sorted.
func (ri *roleIndex) connsOf(role model.Role) []ConnID {
	conns := ri.members[role]
	result := make([]ConnID, 0, len(conns))
	for id := range conns {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// count returns how many connections hold role.
func (ri *roleIndex) count(role model.Role) int {
	return len(ri.members[role])
}
