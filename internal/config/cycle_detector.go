package config

import "sort"

// detectCycle returns the stages participating in a cycle of the parent to
// children adjacency, or nil if the graph is a DAG.
func detectCycle(stages []Stage) []string {
	graph := make(map[string][]string, len(stages))
	for _, stage := range stages {
		graph[stage.Name] = append([]string(nil), stage.NextStages...)
	}

	visiting := make(map[string]bool, len(stages))
	visited := make(map[string]bool, len(stages))
	var stack []string

	var cycle []string
	var dfs func(string) bool
	dfs = func(node string) bool {
		visiting[node] = true
		stack = append(stack, node)

		for _, next := range graph[node] {
			if visited[next] {
				continue
			}
			if visiting[next] {
				idx := indexOf(stack, next)
				if idx >= 0 {
					cycle = append([]string{}, stack[idx:]...)
					cycle = append(cycle, next)
				}
				return true
			}
			if dfs(next) {
				return true
			}
		}

		visiting[node] = false
		visited[node] = true
		stack = stack[:len(stack)-1]
		return false
	}

	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if visited[name] {
			continue
		}
		if dfs(name) {
			break
		}
	}

	return cycle
}

func indexOf(slice []string, target string) int {
	for i, v := range slice {
		if v == target {
			return i
		}
	}
	return -1
}
