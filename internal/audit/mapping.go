package audit

import "strings"

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseRoute returns action and resource for an HTTP method and path
// (e.g. POST /api/v1/mappings/u42/did -> add_did on resource "mapping").
// Unrecognized routes fall back to lowercase method on the first path segment
// after the API prefix.
func ParseRoute(method, path string) ActionResource {
	segs := routeSegments(path)
	if len(segs) == 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}

	switch segs[0] {
	case "auth":
		if len(segs) > 1 {
			return ActionResource{Action: segs[1], Resource: "auth"}
		}
		return ActionResource{Action: strings.ToLower(method), Resource: "auth"}
	case "mappings":
		return ActionResource{Action: mappingAction(method, segs), Resource: "mapping"}
	case "credentials":
		return ActionResource{Action: methodToAction(method), Resource: "credential"}
	case "dids":
		return ActionResource{Action: methodToAction(method), Resource: "did"}
	case "wallet":
		if len(segs) > 1 {
			return ActionResource{Action: segs[1], Resource: "wallet"}
		}
		return ActionResource{Action: methodToAction(method), Resource: "wallet"}
	case "translate":
		return ActionResource{Action: "translate", Resource: "identity"}
	}
	return ActionResource{Action: strings.ToLower(method), Resource: strings.TrimSuffix(segs[0], "s")}
}

// mappingAction maps mapping sub-routes to their lifecycle action names.
func mappingAction(method string, segs []string) string {
	if len(segs) >= 3 {
		switch segs[2] {
		case "did":
			return "add_did"
		case "wallet":
			return "connect_wallet"
		case "phase":
			return "update_phase"
		case "credentials":
			return "convert_credentials"
		}
	}
	return methodToAction(method)
}

func routeSegments(path string) []string {
	path = strings.Trim(path, "/")
	segs := strings.Split(path, "/")
	// Drop the API prefix (api, v1) so route shape changes don't move audit names.
	for len(segs) > 0 && (segs[0] == "api" || strings.HasPrefix(segs[0], "v")) {
		if segs[0] != "api" && !isVersion(segs[0]) {
			break
		}
		segs = segs[1:]
	}
	if len(segs) == 1 && segs[0] == "" {
		return nil
	}
	return segs
}

func isVersion(seg string) bool {
	if len(seg) < 2 || seg[0] != 'v' {
		return false
	}
	for _, r := range seg[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func methodToAction(method string) string {
	switch method {
	case "GET":
		return "get"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
