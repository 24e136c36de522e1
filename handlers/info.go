package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"recognition-server/stats"
)

type RootResponse struct {
	Message   string   `json:"message"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	GPU         bool   `json:"gpu"`
	DetSize     int    `json:"det_size"`
	Backend     string `json:"backend"`
	ModelLoaded bool   `json:"model_loaded"`
}

type StatsResponse struct {
	Uptime float64                  `json:"uptime_s"`
	Routes map[string]stats.Summary `json:"routes"`
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, RootResponse{
		Message:   serviceMessage,
		Version:   serviceVersion,
		Endpoints: endpoints,
	})
}

// Health answers while the model is still loading; gpu and det_size mirror configuration
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		Service:     serviceName,
		GPU:         h.UseGPU,
		DetSize:     h.DetSize,
		Backend:     h.Backend,
		ModelLoaded: h.Model.Ready(),
	})
}

func (h *Handler) Stats(c *gin.Context) {
	result := StatsResponse{Routes: map[string]stats.Summary{}}
	if h.Counters != nil {
		result.Uptime = h.Counters.Uptime().Seconds()
		result.Routes = h.Counters.Snapshot()
	}
	c.JSON(http.StatusOK, result)
}
