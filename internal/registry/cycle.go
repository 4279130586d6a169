package registry

// Cycle policy: a new provider->consumer edge is checked against the live
// instance adjacency before it is created. If a depth-first traversal of
// the existing provider->consumer edges starting at the new consumer
// reaches the new provider, the edge would close a cycle and the instance
// is pinned to the terminal cycle_detected status. Edges already in that
// status still count as adjacency so a second offending edge cannot
// sneak past the check.

// wouldCycleLocked reports whether adding providerID->consumerID closes a
// cycle. Caller holds the registry lock.
func (r *Registry) wouldCycleLocked(providerID, consumerID string) bool {
	if providerID == consumerID {
		return true
	}

	visited := make(map[string]bool)
	return r.reachesLocked(consumerID, providerID, visited)
}

// reachesLocked performs DFS over provider->consumer edges from a
// component, reporting whether target is reachable.
func (r *Registry) reachesLocked(from, target string, visited map[string]bool) bool {
	if from == target {
		return true
	}
	if visited[from] {
		return false
	}
	visited[from] = true

	for _, inst := range r.instByProvider[from] {
		if r.reachesLocked(inst.ConsumerID, target, visited) {
			return true
		}
	}

	return false
}

// DependencyGraph returns the live provider->consumer adjacency as
// component id lists, useful for diagnostics and the list command.
func (r *Registry) DependencyGraph() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	graph := make(map[string][]string, len(r.instByProvider))
	for providerID, insts := range r.instByProvider {
		seen := make(map[string]bool, len(insts))
		for _, inst := range insts {
			if !seen[inst.ConsumerID] {
				seen[inst.ConsumerID] = true
				graph[providerID] = append(graph[providerID], inst.ConsumerID)
			}
		}
	}

	return graph
}
