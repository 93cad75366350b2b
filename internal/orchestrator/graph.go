package orchestrator

import (
	"strings"

	"stackctl/internal/config"
	"stackctl/internal/failure"
)

// StartOrder returns services sorted so that each one follows everything it
// depends on. Among services whose dependencies are satisfied, configuration
// order wins. A cycle or an unknown dependency is a ConfigError.
func StartOrder(services []config.ServiceDefinition) ([]config.ServiceDefinition, error) {
	index := make(map[string]int, len(services))
	for i, svc := range services {
		index[svc.Name] = i
	}

	pending := make([]int, len(services)) // unmet dependency count
	dependents := make([][]int, len(services))
	for i, svc := range services {
		for _, dep := range svc.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, failure.Configf("remove the dependency or define the service",
					"%s depends on unknown service %s", svc.Name, dep)
			}
			pending[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	done := make([]bool, len(services))
	order := make([]config.ServiceDefinition, 0, len(services))
	for len(order) < len(services) {
		next := -1
		for i := range services {
			if !done[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i, svc := range services {
				if !done[i] {
					stuck = append(stuck, svc.Name)
				}
			}
			return nil, failure.Configf("break the cycle in dependsOn",
				"dependency cycle between %s", strings.Join(stuck, ", "))
		}
		done[next] = true
		order = append(order, services[next])
		for _, d := range dependents[next] {
			pending[d]--
		}
	}
	return order, nil
}
