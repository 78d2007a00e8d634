package skillrpc

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"aide/internal/skills"
	"aide/internal/store"
	"aide/internal/types"
)

func newTestService(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	registry := skills.NewRegistry()
	registry.Register(context.Background(), skills.NewTaskManager(st))

	server := NewServer(":0", registry)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, NewClient(ts.URL, 5*time.Second)
}

func TestDispatchOverHTTP(t *testing.T) {
	_, client := newTestService(t)
	ctx := context.Background()

	resp := client.Dispatch(ctx, types.IntentTaskManagement, types.SkillRequest{
		ID: "r1", UserID: 1, Intent: "create_task", Message: "add call the bank",
	})
	if !resp.Success {
		t.Fatalf("dispatch: %+v", resp)
	}
	if resp.Data["task_id"] == "" {
		t.Errorf("data = %+v", resp.Data)
	}

	list := client.Dispatch(ctx, types.IntentTaskManagement, types.SkillRequest{
		ID: "r2", UserID: 1, Intent: "list_tasks",
	})
	if !list.Success {
		t.Fatalf("list: %+v", list)
	}
}

func TestDispatchRejectsMissingIntent(t *testing.T) {
	ts, _ := newTestService(t)
	ctx := context.Background()

	// A client that never sets message_intent gets an error response.
	bare := NewClient(ts.URL, 5*time.Second)
	resp := bare.Dispatch(ctx, "not_an_intent", types.SkillRequest{ID: "r1", UserID: 1})
	if resp.Success {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHeartbeatOverHTTP(t *testing.T) {
	_, client := newTestService(t)
	ctx := context.Background()

	actions, err := client.CollectActions(ctx, []int64{1})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if actions == nil {
		t.Error("actions should decode to an empty slice, not nil")
	}
}

func TestHealthOverHTTP(t *testing.T) {
	_, client := newTestService(t)

	names, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if len(names) != 1 || names[0] != "task_manager" {
		t.Errorf("skills = %v", names)
	}
}

func TestClientWrapsTransportErrors(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 500*time.Millisecond)

	resp := client.Dispatch(context.Background(), types.IntentTaskManagement,
		types.SkillRequest{ID: "r1"})
	if resp.Success || resp.Error == "" {
		t.Errorf("resp = %+v", resp)
	}
}
