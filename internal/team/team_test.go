package team

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loomlabs/loom/internal/agent"
	"github.com/loomlabs/loom/internal/workerpool"
	"github.com/loomlabs/loom/pkg/models"
)

// teamTestLLM returns one scripted response per call and records the
// system prompt it was configured with.
type teamTestLLM struct {
	responses []string
	calls     atomic.Int32

	mu        sync.Mutex
	sysPrompt string
}

func (l *teamTestLLM) ConfigureSystemPrompt(prompt string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sysPrompt = prompt
}

func (l *teamTestLLM) systemPrompt() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sysPrompt
}

func (l *teamTestLLM) StreamUserMessage(ctx context.Context, msg models.Message) (<-chan agent.Chunk, error) {
	call := int(l.calls.Add(1)) - 1
	response := ""
	if call < len(l.responses) {
		response = l.responses[call]
	}
	out := make(chan agent.Chunk, 2)
	out <- agent.Chunk{Content: response}
	out <- agent.Chunk{Final: true}
	close(out)
	return out, nil
}

func (l *teamTestLLM) SendUserMessage(ctx context.Context, msg models.Message) (agent.CompleteResponse, error) {
	return agent.CompleteResponse{}, nil
}

func (l *teamTestLLM) Provider() models.Provider     { return models.ProviderUnknown }
func (l *teamTestLLM) ModelName() string             { return "team-test" }
func (l *teamTestLLM) Cleanup(ctx context.Context) error { return nil }

func testDeps() agent.Deps {
	return agent.Deps{
		Pool:   workerpool.New(8),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTeamDelegationEventDriven(t *testing.T) {
	planResponse := `<tool_calls><tool_call name="publish_task_plan" id="p1"><arguments><arg name="tasks">[{"title":"summarize report","assigned_to":"Worker"}]</arg></arguments></tool_call></tool_calls>`
	coordLLM := &teamTestLLM{responses: []string{planResponse, "plan published"}}
	workerLLM := &teamTestLLM{responses: []string{"on it"}}

	useXML := true
	cfg := &Config{
		Name:             "research-team",
		NotificationMode: NotifySystemEventDriven,
		UseXMLToolFormat: &useXML,
		Nodes: []NodeConfig{
			{
				Coordinator: true,
				Agent: &agent.Config{
					Name:                  "Coord",
					Role:                  "coordinator",
					Description:           "Plans and delegates work.",
					LLM:                   coordLLM,
					SystemPrompt:          "You lead this team:\n{{team}}",
					AutoExecuteTools:      true,
					PollTimeout:           10 * time.Millisecond,
					LLMResponseProcessors: []agent.ResponseProcessor{agent.NewToolUsageProcessor(0)},
				},
			},
			{
				Agent: &agent.Config{
					Name:        "Worker",
					Role:        "researcher",
					Description: "Executes assigned tasks.",
					LLM:         workerLLM,
					PollTimeout: 10 * time.Millisecond,
				},
			},
		},
	}

	team, err := New(cfg, testDeps())
	if err != nil {
		t.Fatal(err)
	}
	if err := team.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = team.Stop(ctx)
	})

	waitUntil(t, "team idle", func() bool { return team.Status() == StatusIdle })

	// Manifest injection: the coordinator's prompt lists the worker
	// but never the coordinator itself.
	prompt := coordLLM.systemPrompt()
	if !strings.Contains(prompt, "- name: Worker") {
		t.Fatalf("coordinator prompt = %q, want worker manifest entry", prompt)
	}
	if strings.Contains(prompt, "- name: Coord") {
		t.Fatal("coordinator manifest lists itself")
	}

	worker, ok := team.Agent("Worker")
	if !ok {
		t.Fatal("worker agent not spawned")
	}
	var interAgentEvents atomic.Int32
	worker.Subscribe(models.EventKindInterAgentMessage, func(_ models.AgentEvent) {
		interAgentEvents.Add(1)
	})

	if err := team.PostUserMessage("research the report"); err != nil {
		t.Fatal(err)
	}

	waitUntil(t, "task on board", func() bool { return len(team.Board().Tasks()) == 1 })
	task := team.Board().Tasks()[0]
	if task.AssignedTo != "Worker" || task.Title != "summarize report" {
		t.Fatalf("task = %+v", task)
	}

	waitUntil(t, "worker notification", func() bool { return interAgentEvents.Load() >= 1 })
	time.Sleep(100 * time.Millisecond)
	if got := interAgentEvents.Load(); got != 1 {
		t.Fatalf("worker received %d notifications, want exactly 1", got)
	}
}

func TestTeamManifestExcludesSelf(t *testing.T) {
	team := &Team{cfg: &Config{
		Name: "m",
		Nodes: []NodeConfig{
			{Agent: &agent.Config{Name: "A", Role: "lead"}},
			{Agent: &agent.Config{Name: "B", Description: "helper"}},
			{Agent: &agent.Config{Name: "C"}},
		},
	}}

	manifest := team.manifestFor("B")
	if strings.Contains(manifest, "- name: B") {
		t.Fatal("manifest lists the excluded node")
	}
	for _, want := range []string{"- name: A", "  role: lead", "- name: C"} {
		if !strings.Contains(manifest, want) {
			t.Fatalf("manifest = %q, missing %q", manifest, want)
		}
	}
}

func TestTeamConfigValidation(t *testing.T) {
	base := func() *Config {
		return &Config{
			Name: "v",
			Nodes: []NodeConfig{
				{Coordinator: true, Agent: &agent.Config{Name: "c", LLMModelName: "m", LLMFactory: stubFactory{}}},
				{Agent: &agent.Config{Name: "w", LLMModelName: "m", LLMFactory: stubFactory{}}},
			},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	noCoord := base()
	noCoord.Nodes[0].Coordinator = false
	if err := noCoord.Validate(); err == nil {
		t.Fatal("config without coordinator accepted")
	}

	dup := base()
	dup.Nodes[1].Agent.Name = "c"
	if err := dup.Validate(); err == nil {
		t.Fatal("duplicate node names accepted")
	}

	badMode := base()
	badMode.NotificationMode = "SOMETIMES"
	if err := badMode.Validate(); err == nil {
		t.Fatal("unknown notification mode accepted")
	}
}

func TestTeamStopWithFloodedEventQueue(t *testing.T) {
	cfg := &Config{
		Name:       "flooded",
		QueueBound: 8,
		Nodes: []NodeConfig{{
			Coordinator: true,
			Agent: &agent.Config{
				Name:        "Solo",
				LLM:         &teamTestLLM{},
				PollTimeout: 10 * time.Millisecond,
			},
		}},
	}
	team, err := New(cfg, testDeps())
	if err != nil {
		t.Fatal(err)
	}

	// Fill the event channel to capacity before the loop starts
	// draining; the shutdown request must still get through.
	for i := 0; i < cap(team.events); i++ {
		team.events <- Event{Kind: EventError}
	}

	if err := team.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := team.Stop(ctx); err != nil {
		t.Fatalf("stop with a full event queue: %v", err)
	}
	if team.Status() != StatusShutdownComplete {
		t.Fatalf("status = %s, want shutdown complete", team.Status())
	}
}

func TestTeamConfigNestedAndDependencyValidation(t *testing.T) {
	node := func(name string, deps ...string) NodeConfig {
		return NodeConfig{
			Agent:     &agent.Config{Name: name, LLMModelName: "m", LLMFactory: stubFactory{}},
			DependsOn: deps,
		}
	}
	base := func() *Config {
		coord := node("c")
		coord.Coordinator = true
		return &Config{Name: "n", Nodes: []NodeConfig{coord, node("w")}}
	}

	nested := base()
	sub := base()
	sub.Name = "sub"
	nested.Nodes = append(nested.Nodes, NodeConfig{Team: sub})
	if err := nested.Validate(); err != nil {
		t.Fatalf("nested team rejected: %v", err)
	}

	both := base()
	both.Nodes[1].Team = sub
	if err := both.Validate(); err == nil {
		t.Fatal("node with both agent and sub-team accepted")
	}

	empty := base()
	empty.Nodes[1].Agent = nil
	if err := empty.Validate(); err == nil {
		t.Fatal("node without definition accepted")
	}

	coordTeam := base()
	coordTeam.Nodes[0] = NodeConfig{Team: sub, Coordinator: true}
	if err := coordTeam.Validate(); err == nil {
		t.Fatal("sub-team coordinator accepted")
	}

	unknownDep := base()
	unknownDep.Nodes[1].DependsOn = []string{"ghost"}
	if err := unknownDep.Validate(); err == nil {
		t.Fatal("dependency on unknown node accepted")
	}

	coordDep := base()
	coordDep.Nodes[1].DependsOn = []string{"c"}
	if err := coordDep.Validate(); err == nil {
		t.Fatal("dependency on coordinator accepted")
	}

	cycle := base()
	cycle.Nodes = append(cycle.Nodes, node("x", "y"), node("y", "x"))
	if err := cycle.Validate(); err == nil {
		t.Fatal("dependency cycle accepted")
	}
}

func TestMemberSpawnOrderRespectsDependencies(t *testing.T) {
	coord := NodeConfig{Coordinator: true, Agent: &agent.Config{Name: "c"}}
	cfg := &Config{Name: "o", Nodes: []NodeConfig{
		coord,
		{Agent: &agent.Config{Name: "a"}, DependsOn: []string{"b"}},
		{Agent: &agent.Config{Name: "b"}, DependsOn: []string{"d"}},
		{Agent: &agent.Config{Name: "d"}},
	}}

	var names []string
	for _, node := range cfg.memberSpawnOrder() {
		names = append(names, node.Name())
	}
	position := make(map[string]int, len(names))
	for i, name := range names {
		position[name] = i
	}
	if len(names) != 3 {
		t.Fatalf("spawn order = %v, want 3 members", names)
	}
	if position["d"] > position["b"] || position["b"] > position["a"] {
		t.Fatalf("spawn order = %v, want dependencies first", names)
	}
}

func TestTeamNestedDelegation(t *testing.T) {
	planResponse := `<tool_calls><tool_call name="publish_task_plan" id="p1"><arguments><arg name="tasks">[{"title":"dig into the archives","assigned_to":"Archive"}]</arg></arguments></tool_call></tool_calls>`
	coordLLM := &teamTestLLM{responses: []string{planResponse, "delegated"}}
	subLeadLLM := &teamTestLLM{responses: []string{"taking it"}}

	useXML := true
	cfg := &Config{
		Name:             "root-team",
		NotificationMode: NotifySystemEventDriven,
		UseXMLToolFormat: &useXML,
		Nodes: []NodeConfig{
			{
				Coordinator: true,
				Agent: &agent.Config{
					Name:                  "Root",
					LLM:                   coordLLM,
					AutoExecuteTools:      true,
					PollTimeout:           10 * time.Millisecond,
					LLMResponseProcessors: []agent.ResponseProcessor{agent.NewToolUsageProcessor(0)},
				},
			},
			{
				Team: &Config{
					Name: "Archive",
					Nodes: []NodeConfig{
						{
							Coordinator: true,
							Agent: &agent.Config{
								Name:        "ArchiveLead",
								LLM:         subLeadLLM,
								PollTimeout: 10 * time.Millisecond,
							},
						},
					},
				},
			},
		},
	}

	team, err := New(cfg, testDeps())
	if err != nil {
		t.Fatal(err)
	}
	if err := team.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = team.Stop(ctx)
	})

	waitUntil(t, "team idle", func() bool { return team.Status() == StatusIdle })

	sub, ok := team.SubTeam("Archive")
	if !ok {
		t.Fatal("sub-team not spawned")
	}
	lead, ok := sub.Agent("ArchiveLead")
	if !ok {
		t.Fatal("sub-team coordinator not spawned")
	}
	var notifications atomic.Int32
	lead.Subscribe(models.EventKindInterAgentMessage, func(_ models.AgentEvent) {
		notifications.Add(1)
	})

	if err := team.PostUserMessage("pull the records"); err != nil {
		t.Fatal(err)
	}

	waitUntil(t, "task on board", func() bool { return len(team.Board().Tasks()) == 1 })
	waitUntil(t, "sub-team lead notified", func() bool { return notifications.Load() >= 1 })
}

type stubFactory struct{}

func (stubFactory) Defaults(model string) (agent.LLMSettings, error) {
	return agent.LLMSettings{Model: model}, nil
}

func (stubFactory) Create(settings agent.LLMSettings) (agent.LLMClient, error) {
	return &teamTestLLM{}, nil
}

func TestStatusManagerDerivation(t *testing.T) {
	m := NewStatusManager("derive", nil)
	steps := []struct {
		kind EventKind
		want Status
	}{
		{EventBootstrapStarted, StatusBootstrapping},
		{EventReady, StatusIdle},
		{EventProcessUserMessage, StatusProcessing},
		{EventShutdownRequested, StatusShuttingDown},
		{EventStopped, StatusShutdownComplete},
	}
	for _, step := range steps {
		if got, _ := m.Apply(Event{Kind: step.kind}); got != step.want {
			t.Fatalf("%s: status = %s, want %s", step.kind, got, step.want)
		}
	}
}

func TestStatusManagerIdempotentPerEvent(t *testing.T) {
	m := NewStatusManager("idem", nil)
	changes := 0
	m.Subscribe(func(_ models.AgentEvent) { changes++ })

	m.Apply(Event{Kind: EventBootstrapStarted})
	m.Apply(Event{Kind: EventBootstrapStarted})
	if m.Status() != StatusBootstrapping {
		t.Fatalf("status = %s", m.Status())
	}
	if changes != 1 {
		t.Fatalf("subscriber fired %d times for a repeated event, want 1", changes)
	}
}

func TestTaskBoardPublishAndWatch(t *testing.T) {
	board := NewTaskBoard()
	var seen []string
	board.Watch(func(task Task) { seen = append(seen, task.Title) })

	stored := board.Publish([]Task{
		{Title: "one", AssignedTo: "a"},
		{Title: "two"},
	})
	if len(stored) != 2 {
		t.Fatalf("stored = %d", len(stored))
	}
	for _, task := range stored {
		if task.ID == "" || task.Status != TaskPending {
			t.Fatalf("task = %+v", task)
		}
	}
	if len(seen) != 2 {
		t.Fatalf("watcher saw %d tasks", len(seen))
	}

	if err := board.UpdateStatus(stored[0].ID, TaskDone, "finished"); err != nil {
		t.Fatal(err)
	}
	updated, _ := board.Get(stored[0].ID)
	if updated.Status != TaskDone || updated.Result != "finished" {
		t.Fatalf("updated = %+v", updated)
	}

	if err := board.UpdateStatus("missing", TaskDone, ""); err == nil {
		t.Fatal("unknown task update accepted")
	}
}

func TestTaskNotifierSkipsUnassigned(t *testing.T) {
	board := NewTaskBoard()
	registry := agent.NewContextRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	NewTaskNotifier("t", board, registry.Resolve, logger)

	// No live agents; publishing assigned and unassigned tasks must
	// not panic or error, only log.
	board.Publish([]Task{{Title: "free floating"}, {Title: "orphan", AssignedTo: "nobody"}})
	if n := len(board.Tasks()); n != 2 {
		t.Fatalf("tasks = %d", n)
	}
}

func TestPublishPlanToolRejectsBadArgs(t *testing.T) {
	board := NewTaskBoard()
	tool := NewPublishPlanTool(board)

	cases := []map[string]any{
		{},
		{"tasks": "not a list"},
		{"tasks": []any{"not an object"}},
		{"tasks": []any{map[string]any{"description": "untitled"}}},
	}
	for i, args := range cases {
		if _, err := tool.Execute(context.Background(), testToolContext(t), args); err == nil {
			t.Errorf("case %d: bad args accepted", i)
		}
	}
	if n := len(board.Tasks()); n != 0 {
		t.Fatalf("rejected publishes stored %d tasks", n)
	}
}

func testToolContext(t *testing.T) *agent.Context {
	t.Helper()
	cfg := &agent.Config{Name: fmt.Sprintf("tool-test-%s", t.Name()), LLM: &teamTestLLM{}}
	a, err := agent.New(cfg, testDeps())
	if err != nil {
		t.Fatal(err)
	}
	return a.RuntimeContext()
}
