// Package api serves the HTTP API of the master.
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/determined-ai/devicegate/internal/cluster"
	"github.com/determined-ai/devicegate/internal/project"
	"github.com/determined-ai/devicegate/internal/queue"
	"github.com/determined-ai/devicegate/internal/sproto"
	"github.com/determined-ai/devicegate/pkg/device"
	"github.com/determined-ai/devicegate/pkg/logger"
)

// Info describes the running master.
type Info struct {
	Version     string `json:"version"`
	ClusterName string `json:"cluster_name"`
}

// Handler serves the API over the master's components.
type Handler struct {
	info     Info
	projects *project.Registry
	queue    *queue.Queue
	cluster  *cluster.Cluster
	resolver project.KeyResolver
	devices  device.Registry
	logs     *logger.LogBuffer
}

// NewHandler returns a Handler. logs may be nil.
func NewHandler(
	info Info,
	projects *project.Registry,
	q *queue.Queue,
	c *cluster.Cluster,
	resolver project.KeyResolver,
	devices device.Registry,
	logs *logger.LogBuffer,
) *Handler {
	return &Handler{
		info:     info,
		projects: projects,
		queue:    q,
		cluster:  c,
		resolver: resolver,
		devices:  devices,
		logs:     logs,
	}
}

// Register adds the API routes to e.
func (h *Handler) Register(e *echo.Echo) {
	e.HTTPErrorHandler = JSONErrorHandler

	e.GET("/info", h.getInfo)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")
	v1.GET("/jobs", h.getJobs)
	v1.POST("/jobs/:job_name/builds", h.postBuild)
	v1.GET("/queue", h.getQueue)
	v1.GET("/queue/:item_id", h.getQueueItem)
	v1.DELETE("/queue/:item_id", h.deleteQueueItem)
	v1.GET("/nodes", h.getNodes)
	v1.PATCH("/nodes/:node_name", h.patchNode)
	v1.DELETE("/executors/:item_id", h.deleteExecutorItem)
	v1.GET("/devices", h.getDevices)
	v1.GET("/master/logs", h.getMasterLogs)
}

func (h *Handler) getInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, h.info)
}

func (h *Handler) getMasterLogs(c echo.Context) error {
	since, err := intParam(c, "since", 0)
	if err != nil {
		return err
	}
	limit, err := intParam(c, "limit", -1)
	if err != nil {
		return err
	}
	entries := []*logger.Entry{}
	if h.logs != nil {
		entries = append(entries, h.logs.Entries(since, limit)...)
	}
	return c.JSON(http.StatusOK, entries)
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, AsValidationError("%s must be an integer", name)
	}
	return v, nil
}

// JobSummary describes a configured job.
type JobSummary struct {
	Name    string               `json:"name"`
	Kind    string               `json:"kind"`
	Devices []project.TaskDevice `json:"devices"`
}

func (h *Handler) getJobs(c echo.Context) error {
	jobs := h.projects.List()
	result := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		result = append(result, JobSummary{
			Name:    job.Task.DisplayName(),
			Kind:    string(job.Task.Kind()),
			Devices: job.Devices(h.resolver),
		})
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) postBuild(c echo.Context) error {
	items, err := h.projects.Submit(h.queue, c.Param("job_name"))
	switch {
	case errors.Is(err, project.ErrJobNotFound):
		return AsErrNotFound("job %q", c.Param("job_name"))
	case err != nil:
		return err
	}
	result := make([]queue.ItemSummary, 0, len(items))
	for _, item := range items {
		if s, ok := h.queue.Summary(item.ID); ok {
			result = append(result, s)
		}
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) getQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, h.queue.Summaries())
}

func (h *Handler) getQueueItem(c echo.Context) error {
	s, ok := h.queue.Summary(sproto.ItemID(c.Param("item_id")))
	if !ok {
		return AsErrNotFound("queue item %s", c.Param("item_id"))
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) deleteQueueItem(c echo.Context) error {
	if !h.queue.Cancel(sproto.ItemID(c.Param("item_id"))) {
		return AsErrNotFound("queue item %s", c.Param("item_id"))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) getNodes(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cluster.Summaries())
}

type patchNode struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) patchNode(c echo.Context) error {
	var patch patchNode
	if err := c.Bind(&patch); err != nil {
		return AsValidationError("invalid node patch: %s", err)
	}
	if patch.Enabled == nil {
		return AsValidationError("enabled is required")
	}
	name := c.Param("node_name")
	if err := h.cluster.SetEnabled(name, *patch.Enabled); err != nil {
		if errors.Is(err, cluster.ErrNodeNotFound) {
			return AsErrNotFound("node %q", name)
		}
		return err
	}
	if *patch.Enabled {
		h.queue.Trigger()
	}
	s, _ := h.cluster.Summary(name)
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) deleteExecutorItem(c echo.Context) error {
	if !h.cluster.Abort(sproto.ItemID(c.Param("item_id"))) {
		return AsErrNotFound("running item %s", c.Param("item_id"))
	}
	return c.NoContent(http.StatusAccepted)
}

// DeviceSummary describes who holds and who waits for a device.
type DeviceSummary struct {
	UDID     device.UDID     `json:"udid"`
	Name     string          `json:"name,omitempty"`
	Platform device.Platform `json:"platform,omitempty"`
	Running  []sproto.ItemID `json:"running"`
	Pending  []sproto.ItemID `json:"pending"`
	Waiting  []sproto.ItemID `json:"waiting"`
}

func (h *Handler) getDevices(c echo.Context) error {
	summaries := make(map[device.UDID]*DeviceSummary)
	get := func(udid device.UDID) *DeviceSummary {
		if s, ok := summaries[udid]; ok {
			return s
		}
		d := h.devices[udid]
		s := &DeviceSummary{
			UDID:     udid,
			Name:     d.Name,
			Platform: d.Platform,
			Running:  []sproto.ItemID{},
			Pending:  []sproto.ItemID{},
			Waiting:  []sproto.ItemID{},
		}
		summaries[udid] = s
		return s
	}
	for udid := range h.devices {
		get(udid)
	}

	if running, err := h.cluster.RunningItems(); err == nil {
		for _, item := range running {
			if udid, ok := h.resolver.Resolve(item.Task); ok {
				s := get(udid)
				s.Running = append(s.Running, item.ID)
			}
		}
	}
	if pending, err := h.queue.PendingItems(); err == nil {
		for _, item := range pending {
			if udid, ok := h.resolver.Resolve(item.Task); ok {
				s := get(udid)
				s.Pending = append(s.Pending, item.ID)
			}
		}
	}
	for _, item := range h.queue.Summaries() {
		if item.State == sproto.ItemWaiting && item.Cause != nil && item.Cause.Device != device.None {
			s := get(item.Cause.Device)
			s.Waiting = append(s.Waiting, item.ID)
		}
	}

	udids := maps.Keys(summaries)
	slices.Sort(udids)
	result := make([]*DeviceSummary, 0, len(udids))
	for _, udid := range udids {
		result = append(result, summaries[udid])
	}
	return c.JSON(http.StatusOK, result)
}
