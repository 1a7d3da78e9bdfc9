package routes

import (
	"sort"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/any-hub/hubfs/internal/hubfs"
	"github.com/any-hub/hubfs/internal/metrics"
	"github.com/any-hub/hubfs/internal/server"
)

// RegisterDiagnosticRoutes 暴露 /-/hubs 与 /-/metrics，供运维查询 Hub 绑定与缓存状态。
func RegisterDiagnosticRoutes(app *fiber.App, registry *server.HubRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/hubs", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"hubs": encodeHubBindings(registry.List()),
		})
	})

	app.Get("/-/metrics", adaptor.HTTPHandler(metrics.Handler()))
}

type hubBindingPayload struct {
	HubName  string           `json:"hub_name"`
	Domain   string           `json:"domain"`
	Endpoint string           `json:"endpoint"`
	Revision string           `json:"revision"`
	Protocol string           `json:"protocol"`
	AuthMode string           `json:"auth_mode"`
	Port     int              `json:"port"`
	Cache    hubfs.CacheStats `json:"cache"`
}

func encodeHubBindings(routes []*server.HubRoute) []hubBindingPayload {
	if len(routes) == 0 {
		return nil
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Config.Name < routes[j].Config.Name
	})
	result := make([]hubBindingPayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, hubBindingPayload{
			HubName:  route.Config.Name,
			Domain:   route.Config.Domain,
			Endpoint: route.EndpointURL.String(),
			Revision: route.Config.Revision,
			Protocol: route.Config.Protocol,
			AuthMode: route.Config.AuthMode(),
			Port:     route.ListenPort,
			Cache:    route.Stats(),
		})
	}
	return result
}
