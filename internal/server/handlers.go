package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/manumagallanes/STransmision/internal/config"
	"github.com/manumagallanes/STransmision/internal/modem"
	"github.com/manumagallanes/STransmision/internal/publish"
	"github.com/manumagallanes/STransmision/internal/sim"
)

// MaxStoredRuns bounds the run history kept in memory.
const MaxStoredRuns = 100

// MaxRequestBits bounds the payload of a single simulation request.
const MaxRequestBits = 1 << 22

// MaxRequestBody bounds the size of a JSON request body.
const MaxRequestBody = MaxRequestBits + 64<<10

// Sweep limits.
const (
	MaxSweepPoints  = 64
	MaxSweepWorkers = 32
	MaxStoredSweeps = 20
)

// Handlers holds the HTTP API handlers.
type Handlers struct {
	cfg       *config.Config
	wsHub     *WSHub
	metrics   *Metrics
	publisher publish.Publisher

	// ctx outlives requests; background sweeps run under it.
	ctx context.Context

	mu     sync.Mutex
	runs       map[string]*sim.Result
	order      []string
	sweeps     map[string]*SweepState
	sweepOrder []string
}

// SweepState is the progress of an asynchronous sweep.
type SweepState struct {
	ID      string           `json:"id"`
	Scheme  modem.Scheme     `json:"scheme"`
	Status  string           `json:"status"` // running, completed, failed
	Error   string           `json:"error,omitempty"`
	Total   int              `json:"total"`
	Done    int              `json:"done"`
	Points  []sim.SweepPoint `json:"points,omitempty"`
	Started time.Time        `json:"started"`
}

// NewHandlers creates the API handlers. ctx bounds background sweeps.
func NewHandlers(ctx context.Context, cfg *config.Config, metrics *Metrics, publisher publish.Publisher) *Handlers {
	if publisher == nil {
		publisher = publish.Nop{}
	}
	return &Handlers{
		cfg:       cfg,
		wsHub:     NewWSHub(),
		metrics:   metrics,
		publisher: publisher,
		ctx:       ctx,
		runs:      make(map[string]*sim.Result),
		sweeps:    make(map[string]*SweepState),
	}
}

// Hub returns the websocket hub.
func (h *Handlers) Hub() *WSHub { return h.wsHub }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, new(*http.MaxBytesError)):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, modem.ErrUnsupportedScheme),
		errors.Is(err, modem.ErrInvalidChannelParameter),
		errors.Is(err, modem.ErrMalformedBitstream),
		errors.Is(err, modem.ErrLengthMismatch),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		status = 499 // client closed request
	}
	writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": err.Error(),
	})
}

var errBadRequest = errors.New("bad request")

// decodeRequest reads a JSON body of at most MaxRequestBody bytes.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: parse request: %w", errBadRequest, err)
	}
	return nil
}

// HandleWebSocket upgrades the connection and registers it with the hub.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	h.wsHub.AddClient(conn)

	// Drain client messages so close frames are noticed.
	go func() {
		defer h.wsHub.RemoveClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// SimulateRequest is the body of POST /api/simulate. Either Bits (a string
// of '0' and '1') or RandomBits must be set.
type SimulateRequest struct {
	Scheme           string   `json:"scheme"`
	Amplitude        float64  `json:"amplitude"`
	N0               *float64 `json:"n0"`
	Seed             *uint64  `json:"seed"`
	Stream           uint64   `json:"stream"`
	Bits             string   `json:"bits"`
	RandomBits       int      `json:"random_bits"`
	BitsPerCharacter int      `json:"bits_per_character"`
}

func (req *SimulateRequest) options(cfg *config.Config) (sim.Options, []byte, error) {
	opts := sim.Options{
		Scheme:           cfg.Scheme,
		Amplitude:        cfg.Amplitude,
		N0:               cfg.Channel.N0,
		Seed:             cfg.Channel.Seed,
		Stream:           req.Stream,
		BitsPerCharacter: req.BitsPerCharacter,
	}
	if req.Scheme != "" {
		s, err := modem.ParseScheme(req.Scheme)
		if err != nil {
			return opts, nil, err
		}
		opts.Scheme = s
	}
	if req.Amplitude != 0 {
		opts.Amplitude = req.Amplitude
	}
	if req.N0 != nil {
		opts.N0 = *req.N0
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}

	var bits []byte
	switch {
	case req.Bits != "" && req.RandomBits != 0:
		return opts, nil, fmt.Errorf("%w: set bits or random_bits, not both", errBadRequest)
	case req.Bits != "":
		if len(req.Bits) > MaxRequestBits {
			return opts, nil, fmt.Errorf("%w: more than %d bits", errBadRequest, MaxRequestBits)
		}
		bits = make([]byte, len(req.Bits))
		for i, c := range req.Bits {
			if c != '0' && c != '1' {
				return opts, nil, fmt.Errorf("%w: bit %d is %q", modem.ErrMalformedBitstream, i, c)
			}
			bits[i] = byte(c - '0')
		}
	case req.RandomBits > 0 && req.RandomBits <= MaxRequestBits:
		bits = sim.RandomBits(req.RandomBits, opts.Seed)
	default:
		return opts, nil, fmt.Errorf("%w: random_bits must be in [1, %d]", errBadRequest, MaxRequestBits)
	}
	return opts, bits, nil
}

// HandleSimulate runs one end-to-end simulation synchronously.
func (h *Handlers) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	opts, bits, err := req.options(h.cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := sim.Run(r.Context(), bits, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	h.storeRun(res)
	h.metrics.Observe(res)
	h.wsHub.BroadcastLog("info", res.Summary())
	if err := h.publisher.Publish(r.Context(), publish.RunSummary(res)); err != nil {
		log.Printf("Publish run %s: %v", res.ID, err)
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) storeRun(res *sim.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs[res.ID] = res
	h.order = append(h.order, res.ID)
	if len(h.order) > MaxStoredRuns {
		delete(h.runs, h.order[0])
		h.order = h.order[1:]
	}
}

// RunListEntry is one row of GET /api/runs.
type RunListEntry struct {
	ID      string       `json:"id"`
	Scheme  modem.Scheme `json:"scheme"`
	N0      float64      `json:"n0"`
	Symbols int          `json:"symbols"`
	BER     float64      `json:"ber"`
	Started time.Time    `json:"started"`
}

// HandleRuns lists the stored runs, newest first.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	list := make([]RunListEntry, 0, len(h.order))
	for i := len(h.order) - 1; i >= 0; i-- {
		res := h.runs[h.order[i]]
		list = append(list, RunListEntry{
			ID:      res.ID,
			Scheme:  res.Scheme,
			N0:      res.N0,
			Symbols: res.Metadata.TotalSymbols,
			BER:     res.Analysis.BER,
			Started: res.Started,
		})
	}
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, list)
}

// HandleRun returns one stored run.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.mu.Lock()
	res, ok := h.runs[id]
	h.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SweepRequest is the body of POST /api/sweep. Zero fields take the
// configured defaults.
type SweepRequest struct {
	Scheme  string    `json:"scheme"`
	N0      []float64 `json:"n0"`
	Symbols int       `json:"symbols"`
	Seed    *uint64   `json:"seed"`
	Workers int       `json:"workers"`
}

// HandleSweep starts a sweep in the background and reports progress over
// the websocket.
func (h *Handlers) HandleSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	opts := sim.SweepOptions{
		Scheme:    h.cfg.Scheme,
		Amplitude: h.cfg.Amplitude,
		N0:        h.cfg.Sweep.N0,
		Symbols:   h.cfg.Sweep.Symbols,
		Seed:      h.cfg.Channel.Seed,
		Workers:   h.cfg.Sweep.Workers,
	}
	if req.Scheme != "" {
		s, err := modem.ParseScheme(req.Scheme)
		if err != nil {
			writeError(w, err)
			return
		}
		opts.Scheme = s
	}
	if len(req.N0) > 0 {
		opts.N0 = req.N0
	}
	if req.Symbols > 0 {
		opts.Symbols = req.Symbols
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	if req.Workers > 0 {
		opts.Workers = req.Workers
	}
	if len(opts.N0) > MaxSweepPoints {
		writeError(w, fmt.Errorf("%w: %d sweep points, at most %d", errBadRequest, len(opts.N0), MaxSweepPoints))
		return
	}
	if opts.Workers > MaxSweepWorkers {
		writeError(w, fmt.Errorf("%w: %d workers, at most %d", errBadRequest, opts.Workers, MaxSweepWorkers))
		return
	}
	if opts.Symbols*opts.Scheme.BitsPerSymbol() > MaxRequestBits {
		writeError(w, fmt.Errorf("%w: sweep of %d symbols is too large", errBadRequest, opts.Symbols))
		return
	}

	state := &SweepState{
		ID:      uuid.NewString(),
		Scheme:  opts.Scheme,
		Status:  "running",
		Total:   len(opts.N0),
		Started: time.Now(),
	}
	h.storeSweep(state)

	go h.runSweep(state, opts)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     state.ID,
		"status": "running",
	})
}

// storeSweep records state, forgetting the oldest sweep past
// MaxStoredSweeps. A forgotten sweep still runs to completion.
func (h *Handlers) storeSweep(state *SweepState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweeps[state.ID] = state
	h.sweepOrder = append(h.sweepOrder, state.ID)
	if len(h.sweepOrder) > MaxStoredSweeps {
		delete(h.sweeps, h.sweepOrder[0])
		h.sweepOrder = h.sweepOrder[1:]
	}
}

func (h *Handlers) runSweep(state *SweepState, opts sim.SweepOptions) {
	h.wsHub.BroadcastStatus("sweeping", fmt.Sprintf("Sweep %s: %d points of %v", state.ID, state.Total, opts.Scheme))

	points, err := sim.Sweep(h.ctx, opts, func(p sim.SweepPoint) {
		h.mu.Lock()
		state.Done++
		done := state.Done
		h.mu.Unlock()
		h.wsHub.BroadcastSweepPoint(state.ID, p, done, state.Total)
		if err := h.publisher.Publish(h.ctx, publish.PointSummary(opts.Scheme.String(), p)); err != nil {
			log.Printf("Publish sweep point: %v", err)
		}
	})

	h.mu.Lock()
	if err != nil {
		state.Status = "failed"
		state.Error = err.Error()
	} else {
		state.Status = "completed"
		state.Points = points
	}
	h.mu.Unlock()

	if err != nil {
		log.Printf("Sweep %s failed: %v", state.ID, err)
		h.wsHub.BroadcastStatus("error", fmt.Sprintf("Sweep %s failed: %v", state.ID, err))
		return
	}
	h.wsHub.Broadcast(WSMessage{Type: "sweep_done", Payload: state.snapshot()})
}

func (s *SweepState) snapshot() SweepState {
	c := *s
	c.Points = append([]sim.SweepPoint(nil), s.Points...)
	return c
}

// HandleSweepState returns the progress or outcome of a sweep.
func (h *Handlers) HandleSweepState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.mu.Lock()
	state, ok := h.sweeps[id]
	var snap SweepState
	if ok {
		snap = state.snapshot()
	}
	h.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "sweep not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SchemeSymbol is one row of an alphabet table.
type SchemeSymbol struct {
	Index int         `json:"index"`
	Bits  string      `json:"bits"`
	Point modem.Point `json:"point"`
}

// SchemeInfo describes one supported scheme.
type SchemeInfo struct {
	Name              modem.Scheme   `json:"name"`
	BitsPerSymbol     int            `json:"bits_per_symbol"`
	ConstellationSize int            `json:"constellation_size"`
	Symbols           []SchemeSymbol `json:"symbols"`
}

// HandleSchemes returns the alphabet of every scheme.
func (h *Handlers) HandleSchemes(w http.ResponseWriter, r *http.Request) {
	infos := make([]SchemeInfo, 0, len(modem.Schemes))
	for _, s := range modem.Schemes {
		a, err := modem.AlphabetFor(s)
		if err != nil {
			writeError(w, err)
			return
		}
		info := SchemeInfo{
			Name:              s,
			BitsPerSymbol:     s.BitsPerSymbol(),
			ConstellationSize: s.ConstellationSize(),
		}
		for idx := 0; idx < a.Size(); idx++ {
			bits, _ := a.IndexToBits(idx)
			p, _ := a.IndexToPoint(idx)
			pattern := make([]byte, len(bits))
			for i, b := range bits {
				pattern[i] = '0' + b
			}
			info.Symbols = append(info.Symbols, SchemeSymbol{Index: idx, Bits: string(pattern), Point: p})
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, infos)
}

// HandleStatus reports what the server is doing.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	running := 0
	for _, s := range h.sweeps {
		if s.Status == "running" {
			running++
		}
	}
	runs := len(h.runs)
	h.mu.Unlock()

	status := "idle"
	if running > 0 {
		status = "sweeping"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"runs":           runs,
		"running_sweeps": running,
		"clients":        h.wsHub.NumClients(),
		"scheme":         h.cfg.Scheme,
		"n0":             h.cfg.Channel.N0,
	})
}
