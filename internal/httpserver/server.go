package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/twilio/twilio-go/twiml"

	"github.com/oleksandr-gridin/deinetuer-ai/internal/bridge"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/config"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/middleware"
	"github.com/oleksandr-gridin/deinetuer-ai/internal/recording"
)

// Server bundles the router with its dependencies.
type Server struct {
	Echo *echo.Echo
}

// Deps carries everything the routes need. Recorder may be nil when
// recording credentials are not configured.
type Deps struct {
	Config   config.Config
	Settings *config.SettingsStore
	Handler  *bridge.Handler
	Recorder *recording.Recorder
}

// New constructs the router with all routes registered.
func New(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	s := &Server{Echo: e}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	twilioAuth := middleware.TwilioAuth(func() string { return deps.Config.TwilioAuthToken })
	e.POST("/twilio/voice", s.handleVoice(deps), twilioAuth)
	e.POST("/twilio/recording-status", s.handleRecordingStatus(deps), twilioAuth)

	e.GET("/call/stream", deps.Handler.HandleStream)
	e.GET("/call/logs", deps.Handler.HandleLogs)

	adminAuth := adminTokenAuth(deps.Config.AdminToken)
	e.GET("/admin/settings", s.handleGetSettings(deps), adminAuth)
	e.POST("/admin/settings", s.handleUpdateSettings(deps), adminAuth)

	return s
}

// handleVoice answers the inbound-call webhook with instructions to open a
// bidirectional media stream back to this server.
func (s *Server) handleVoice(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := middleware.Params(c)
		log.Printf("inbound call from %s, CallSID: %s", params["From"], params["CallSid"])

		host := deps.Config.PublicHost
		if host == "" {
			host = c.Request().Host
		}
		stream := &twiml.VoiceStream{Url: "wss://" + host + "/call/stream"}
		connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}

		response, err := twiml.Voice([]twiml.Element{connect})
		if err != nil {
			return c.String(http.StatusInternalServerError, "twiml error")
		}
		return c.XMLBlob(http.StatusOK, []byte(response))
	}
}

func (s *Server) handleRecordingStatus(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := middleware.Params(c)
		status := params["RecordingStatus"]
		recordingURL := params["RecordingUrl"]
		recordingSID := params["RecordingSid"]
		log.Printf("recording status %s for %s", status, recordingSID)

		if status == "completed" && recordingURL != "" && deps.Recorder != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := deps.Recorder.Ingest(ctx, recordingURL, recordingSID); err != nil {
					log.Printf("recording ingest failed: %v", err)
				}
			}()
		}
		return c.String(http.StatusOK, "OK")
	}
}

func (s *Server) handleGetSettings(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, deps.Settings.Current())
	}
}

// handleUpdateSettings applies a partial settings update. Omitted fields keep
// their current values; new calls pick up the change, live ones do not.
func (s *Server) handleUpdateSettings(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		next := deps.Settings.Current()
		if err := c.Bind(&next); err != nil {
			return c.String(http.StatusBadRequest, "invalid settings payload")
		}
		deps.Settings.Update(next)
		log.Printf("agent settings updated: voice=%s silence=%dms", next.Voice, next.SilenceDurationMs)
		return c.JSON(http.StatusOK, next)
	}
}

func adminTokenAuth(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return c.String(http.StatusForbidden, "admin API disabled")
			}
			if c.Request().Header.Get("Authorization") != "Bearer "+token {
				return c.String(http.StatusUnauthorized, "unauthorized")
			}
			return next(c)
		}
	}
}
