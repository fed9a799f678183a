package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"ephys-cam/pkg/ov"
	"ephys-cam/pkg/rig"
	"ephys-cam/pkg/storage"
	"ephys-cam/pkg/utils"
	"ephys-cam/pkg/utils/ps"
	"ephys-cam/pkg/webdav"
)

const (
	webDavStart    = "start"
	webDavShutdown = "shutdown"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Server is the HTTP control surface of a rig.
type Server struct {
	rig      *rig.Rig
	dav      *webdav.Webdav
	upgrader websocket.Upgrader
	origins  []string
	engine   *gin.Engine
}

// NewServer builds the routes. Without origins every origin may call the API.
func NewServer(r *rig.Rig, dav *webdav.Webdav, origins ...string) *Server {
	s := &Server{
		rig:     r,
		dav:     dav,
		origins: origins,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.setupRoutes()

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	e := gin.New()
	e.Use(gin.Logger())
	e.Use(gin.Recovery())
	e.Use(utils.Cors(s.origins...))
	e.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})

	apiRouter := e.Group("/api")
	apiRouter.GET("/details", s.getDetails)
	apiRouter.GET("/host", s.hostStatus)
	apiRouter.PUT("/webdav", s.ctlWebdav)
	apiRouter.GET("/recordings", s.listRecordings)

	cameraRouter := apiRouter.Group("/cameras")
	cameraRouter.GET("", s.listCameras)
	cameraRouter.PUT("/:index/exposure", s.setExposure)
	cameraRouter.GET("/:index/snapshot", s.snapshot)

	recordingRouter := apiRouter.Group("/recording")
	recordingRouter.GET("", s.recordingStatus)
	recordingRouter.POST("", s.startRecording)
	recordingRouter.DELETE("", s.stopRecording)

	apiRouter.GET("/rig/events", s.events)

	s.engine = e
}

func (s *Server) getDetails(c *gin.Context) {
	d := s.rig.Details()
	c.JSON(http.StatusOK, jsend.Success(ov.Details{Cams: d.Cams(), Subjects: d.Subjects()}))
}

func (s *Server) listCameras(c *gin.Context) {
	c.JSON(http.StatusOK, jsend.Success(s.rig.Status().Cameras))
}

func (s *Server) setExposure(c *gin.Context) {
	index, ok := cameraIndex(c)
	if !ok {
		return
	}
	var req ov.UpdateExposure
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	v, err := s.rig.SetExposure(index, *req.Exposure)
	if err != nil {
		rigErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(ov.Exposure{Index: index, Exposure: v}))
}

func (s *Server) snapshot(c *gin.Context) {
	index, ok := cameraIndex(c)
	if !ok {
		return
	}
	jpg, err := s.rig.Snapshot(index)
	if err != nil {
		rigErr(c, err)
		return
	}

	c.Data(http.StatusOK, "image/jpeg", jpg)
}

func (s *Server) recordingStatus(c *gin.Context) {
	c.JSON(http.StatusOK, jsend.Success(s.rig.Status()))
}

func (s *Server) startRecording(c *gin.Context) {
	var req ov.StartRecording
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	if err := s.rig.StartRecording(req.Subject); err != nil {
		rigErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(s.rig.Status()))
}

func (s *Server) stopRecording(c *gin.Context) {
	sum, err := s.rig.StopRecording()
	if err != nil && sum == nil {
		rigErr(c, err)
		return
	}
	if err != nil {
		logger.Errorf("stop recording: %s", err)
	}

	c.JSON(http.StatusOK, jsend.Success(sum))
}

func (s *Server) listRecordings(c *gin.Context) {
	files, err := storage.List(s.rig.OutputDirs()...)
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(files))
}

func (s *Server) hostStatus(c *gin.Context) {
	h, err := ps.HostStatus(s.rig.OutputDirs()...)
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(h))
}

func (s *Server) ctlWebdav(c *gin.Context) {
	if s.dav == nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("webdav is not configured"))
		return
	}
	op := c.Query("op")
	switch op {
	case webDavStart:
		s.dav.Start()
		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}
		c.JSON(http.StatusOK, jsend.Success(ov.Webdav{Running: true, Host: host, Port: s.dav.Port()}))
	case webDavShutdown:
		s.dav.Stop()
		c.JSON(http.StatusOK, jsend.Success(ov.Webdav{Running: false, Port: s.dav.Port()}))
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}

// events streams rig events over a websocket, starting with the current status.
func (s *Server) events(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("websocket upgrade err: %s", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.rig.Subscribe()
	defer cancel()
	go func() {
		// the client only closes; reading detects that
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	if err = conn.WriteJSON(rig.Event{Type: "status", Status: s.rig.Status()}); err != nil {
		logger.Debugf("websocket write err: %s", err)
		return
	}
	for e := range updates {
		if err = conn.WriteJSON(e); err != nil {
			logger.Debugf("websocket write err: %s", err)
			return
		}
	}
}

func cameraIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(fmt.Sprintf("invalid camera index %q", c.Param("index"))))
		return 0, false
	}
	return index, true
}

func rigErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rig.ErrNoCamera):
		c.JSON(http.StatusNotFound, jsend.SimpleErr(err.Error()))
	case errors.Is(err, rig.ErrRecording), errors.Is(err, rig.ErrNotRecording), errors.Is(err, rig.ErrClosed):
		c.JSON(http.StatusConflict, jsend.SimpleErr(err.Error()))
	default:
		internalErr(c, err)
	}
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}
