// Package admin implements Iris's read-only introspection surface: a
// small gin router exposing every running Graph's module order and
// state, plus a websocket that streams one JSON line per completed tick.
// It is grounded on the teacher's plugin route registration
// (api/internal/plugins/api_registry.go) and its websocket upgrade
// handling (api/internal/websocket/handlers.go), adapted from a
// multi-tenant session API onto a single process's own graphs. It never
// drives execution — every handler here only reads state the Manager
// already holds.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/iris-run/iris/internal/bus"
	"github.com/iris-run/iris/internal/graph"
	"github.com/iris-run/iris/internal/manager"
	"github.com/iris-run/iris/internal/middleware"
)

// Server hosts the introspection HTTP+WS surface over one Manager.
type Server struct {
	mgr    *manager.Manager
	log    zerolog.Logger
	router *gin.Engine
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewServer builds the gin router over mgr. Routes are registered
// immediately; call Run to start listening.
func NewServer(mgr *manager.Manager, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID())

	s := &Server{mgr: mgr, log: log, router: router}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/graphs", s.listGraphs)
	s.router.GET("/graphs/:name/modules", s.listModules)
	s.router.GET("/graphs/:name/modules/:module/params", s.moduleParams)
	s.router.GET("/graphs/:name/stream", s.streamTicks)
}

// Run starts the HTTP server on addr. It blocks until the server stops
// or errors, the same contract as gin.Engine.Run.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

type graphSummary struct {
	Name  string   `json:"name"`
	Order []string `json:"order"`
}

func (s *Server) listGraphs(c *gin.Context) {
	graphs := s.mgr.Graphs()
	out := make([]graphSummary, 0, len(graphs))
	for name, g := range graphs {
		out = append(out, graphSummary{Name: name, Order: g.Order()})
	}
	c.JSON(http.StatusOK, gin.H{"graphs": out})
}

func (s *Server) findGraph(c *gin.Context) (*graph.Graph, bool) {
	name := c.Param("name")
	g, ok := s.mgr.Graphs()[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown graph"})
		return nil, false
	}
	return g, true
}

func (s *Server) listModules(c *gin.Context) {
	g, ok := s.findGraph(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"modules": g.Modules()})
}

func (s *Server) moduleParams(c *gin.Context) {
	g, ok := s.findGraph(c)
	if !ok {
		return
	}
	params, ok := g.ModuleParams(c.Param("module"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown module"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"params": params})
}

// streamTicks upgrades to a websocket and forwards one JSON line per
// completed tick, sourced from the Bus's well-known per-graph tick key —
// the graph_timing_enable contract (spec.md §6) made observable over the
// wire.
func (s *Server) streamTicks(c *gin.Context) {
	g, ok := s.findGraph(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("admin: websocket upgrade failed")
		return
	}
	defer conn.Close()

	handle := bus.NewHandle(0)
	defer handle.Close()

	ticks := make(chan graph.TickEvent, 16)
	handle.EnrollSubscriber(graph.TickKey(g.Name), bus.TypeTagOf[graph.TickEvent](), bus.Optional,
		func(payload any, index int) {
			if ev, ok := payload.(graph.TickEvent); ok {
				select {
				case ticks <- ev:
				default:
				}
			}
		})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case ev := <-ticks:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
