package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/determined-ai/devicegate/internal/admission"
	"github.com/determined-ai/devicegate/internal/cluster"
	"github.com/determined-ai/devicegate/internal/config"
	"github.com/determined-ai/devicegate/internal/project"
	"github.com/determined-ai/devicegate/internal/queue"
	"github.com/determined-ai/devicegate/internal/resolver"
	"github.com/determined-ai/devicegate/internal/sproto"
	"github.com/determined-ai/devicegate/pkg/device"
	"github.com/determined-ai/devicegate/pkg/logger"
	"github.com/determined-ai/devicegate/pkg/model"
)

type testMaster struct {
	e       *echo.Echo
	queue   *queue.Queue
	cluster *cluster.Cluster
}

func setup(t *testing.T) *testMaster {
	clock := clockwork.NewFakeClock()
	devices := device.NewRegistry([]device.Device{{UDID: "D1", Name: "iPhone 15", Platform: device.IOS}})
	projects := project.NewRegistry([]config.JobConfig{
		{
			Freestyle: &config.FreestyleJobConfig{},
			Name:      "app",
			Steps:     []config.StepConfig{{Deploy: &model.DeployStep{UDID: "D1"}}},
		},
		{
			Matrix: &config.MatrixJobConfig{Axes: []model.Axis{
				{Name: "os", Values: []string{"17", "18"}},
			}},
			Name:  "ui",
			Steps: []config.StepConfig{{Deploy: &model.DeployStep{UDID: "D-${os}"}}},
		},
	})
	res := resolver.New()

	launcher := cluster.LauncherFunc(func(ctx context.Context, _ *sproto.Item) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c := cluster.New(clock, launcher, []cluster.NodeSpec{{Name: "n1", Executors: 2, Enabled: true}})
	q := queue.New(clock)
	q.AddDispatcher(admission.New(res, q, c, nil))
	q.Start()
	c.Start(context.Background())
	t.Cleanup(c.Stop)

	logs := logger.NewLogBuffer(8)
	require.NoError(t, logs.Fire(&logrus.Entry{Message: "hello", Level: logrus.InfoLevel}))

	e := echo.New()
	NewHandler(Info{Version: "test", ClusterName: "lab"}, projects, q, c, res, devices, logs).Register(e)
	return &testMaster{e: e, queue: q, cluster: c}
}

func (m *testMaster) do(t *testing.T, method, path, body string, out interface{}) int {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	m.e.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestInfoAndJobs(t *testing.T) {
	m := setup(t)

	var info Info
	require.Equal(t, http.StatusOK, m.do(t, http.MethodGet, "/info", "", &info))
	require.Equal(t, Info{Version: "test", ClusterName: "lab"}, info)

	var jobs []JobSummary
	require.Equal(t, http.StatusOK, m.do(t, http.MethodGet, "/api/v1/jobs", "", &jobs))
	require.Len(t, jobs, 2)
	require.Equal(t, "app", jobs[0].Name)
	require.Equal(t, []project.TaskDevice{{Task: "app", Device: "D1"}}, jobs[0].Devices)
	require.Equal(t, string(model.MatrixKind), jobs[1].Kind)
	require.Equal(t, []project.TaskDevice{
		{Task: "ui/os=17", Device: "D-17"},
		{Task: "ui/os=18", Device: "D-18"},
	}, jobs[1].Devices)
}

func TestBuildLifecycle(t *testing.T) {
	m := setup(t)

	var first, second []queue.ItemSummary
	require.Equal(t, http.StatusCreated, m.do(t, http.MethodPost, "/api/v1/jobs/app/builds", "", &first))
	require.Equal(t, http.StatusCreated, m.do(t, http.MethodPost, "/api/v1/jobs/app/builds", "", &second))
	require.Len(t, first, 1)
	require.Len(t, second, 1)

	var apiErr map[string]string
	require.Equal(t, http.StatusNotFound,
		m.do(t, http.MethodPost, "/api/v1/jobs/missing/builds", "", &apiErr))
	require.Contains(t, apiErr["message"], "missing")

	require.Equal(t, 1, m.queue.Maintain(m.cluster))

	var queued []queue.ItemSummary
	require.Equal(t, http.StatusOK, m.do(t, http.MethodGet, "/api/v1/queue", "", &queued))
	require.Len(t, queued, 1)
	require.Equal(t, second[0].ID, queued[0].ID)
	require.Equal(t, sproto.ItemWaiting, queued[0].State)
	require.NotNil(t, queued[0].Cause)
	require.Equal(t, device.UDID("D1"), queued[0].Cause.Device)

	var devices []DeviceSummary
	require.Equal(t, http.StatusOK, m.do(t, http.MethodGet, "/api/v1/devices", "", &devices))
	require.Len(t, devices, 1)
	require.Equal(t, "iPhone 15", devices[0].Name)
	require.Equal(t, []sproto.ItemID{first[0].ID}, devices[0].Running)
	require.Empty(t, devices[0].Pending)
	require.Equal(t, []sproto.ItemID{second[0].ID}, devices[0].Waiting)

	var item queue.ItemSummary
	require.Equal(t, http.StatusOK,
		m.do(t, http.MethodGet, "/api/v1/queue/"+string(second[0].ID), "", &item))
	require.Equal(t, second[0].ID, item.ID)

	require.Equal(t, http.StatusNotFound,
		m.do(t, http.MethodDelete, "/api/v1/executors/nope", "", nil))
	require.Equal(t, http.StatusAccepted,
		m.do(t, http.MethodDelete, "/api/v1/executors/"+string(first[0].ID), "", nil))

	require.Equal(t, http.StatusNoContent,
		m.do(t, http.MethodDelete, "/api/v1/queue/"+string(second[0].ID), "", nil))
	require.Equal(t, http.StatusNotFound,
		m.do(t, http.MethodDelete, "/api/v1/queue/"+string(second[0].ID), "", nil))
}

func TestPatchNode(t *testing.T) {
	m := setup(t)

	var node cluster.NodeSummary
	require.Equal(t, http.StatusOK,
		m.do(t, http.MethodPatch, "/api/v1/nodes/n1", `{"enabled": false}`, &node))
	require.False(t, node.Enabled)

	var nodes []cluster.NodeSummary
	require.Equal(t, http.StatusOK, m.do(t, http.MethodGet, "/api/v1/nodes", "", &nodes))
	require.Len(t, nodes, 1)
	require.False(t, nodes[0].Enabled)
	require.Len(t, nodes[0].Executors, 2)

	require.Equal(t, http.StatusBadRequest,
		m.do(t, http.MethodPatch, "/api/v1/nodes/n1", `{}`, nil))
	require.Equal(t, http.StatusNotFound,
		m.do(t, http.MethodPatch, "/api/v1/nodes/n9", `{"enabled": true}`, nil))
}

func TestMetrics(t *testing.T) {
	m := setup(t)
	require.Equal(t, http.StatusOK, m.do(t, http.MethodGet, "/metrics", "", nil))
}

func TestMasterLogs(t *testing.T) {
	m := setup(t)

	var entries []logger.Entry
	require.Equal(t, http.StatusOK, m.do(t, http.MethodGet, "/api/v1/master/logs?limit=1", "", &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "hello", entries[0].Message)

	require.Equal(t, http.StatusOK, m.do(t, http.MethodGet, "/api/v1/master/logs?since=1", "", &entries))
	require.Empty(t, entries)

	require.Equal(t, http.StatusBadRequest,
		m.do(t, http.MethodGet, "/api/v1/master/logs?limit=x", "", nil))
}
