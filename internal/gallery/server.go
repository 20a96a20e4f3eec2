package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"gorm.io/gorm"

	"github.com/snapcommit/snapcommit/internal/config"
	"github.com/snapcommit/snapcommit/internal/events"
	"github.com/snapcommit/snapcommit/internal/gitmeta"
	"github.com/snapcommit/snapcommit/internal/logger"
	"github.com/snapcommit/snapcommit/internal/metapng"
	"github.com/snapcommit/snapcommit/internal/persist"
	"github.com/snapcommit/snapcommit/internal/pipeline"
)

const maxUploadBytes = 32 << 20

// Server is the HTTP surface of the gallery daemon.
type Server struct {
	store  *Store
	bus    *events.Bus
	writer *persist.Writer
	thumbs *Thumbnailer
	cfg    config.GalleryConfig

	// Process runs the annotation stages on frames uploaded without
	// embedded metadata. Nil means such uploads are stored as sent.
	Process func(ctx context.Context, frame *image.RGBA, meta *gitmeta.CommitMetadata) ([]byte, error)

	upgrader websocket.Upgrader
}

// NewServer wires the gallery HTTP server. Uploads land in the watch
// directory, so the watcher indexes them like any locally written file.
func NewServer(store *Store, bus *events.Bus, cfg config.GalleryConfig) *Server {
	return &Server{
		store:  store,
		bus:    bus,
		writer: persist.NewWriter(cfg.WatchDir),
		thumbs: NewThumbnailer(filepath.Join(cfg.DataDir, "thumbs"), cfg.ThumbnailWidth, cfg.ThumbnailQuality),
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.MaxMultipartMemory = maxUploadBytes

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": "snapcommit",
			})
		})

		api.GET("/images", s.handleListImages)
		api.GET("/images/:filename", s.handleGetImage)
		api.GET("/images/:filename/thumbnail", s.handleThumbnail)
		api.POST("/upload", s.handleUpload)
		api.GET("/config", s.handleConfig)
		api.GET("/system", s.handleSystem)
		api.GET("/events", s.handleEvents)
	}

	return r
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gallery listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) handleListImages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	images, total, err := s.store.List(limit, offset)
	if err != nil {
		logger.Error("list images failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list images"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"images": images,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleGetImage(c *gin.Context) {
	img, ok := s.lookupImage(c)
	if !ok {
		return
	}
	c.File(img.Path)
}

func (s *Server) handleThumbnail(c *gin.Context) {
	img, ok := s.lookupImage(c)
	if !ok {
		return
	}

	data, err := s.thumbs.Render(img.Path)
	if err != nil {
		logger.Error("thumbnail render failed", "file", img.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render thumbnail"})
		return
	}
	c.Data(http.StatusOK, "image/webp", data)
}

func (s *Server) lookupImage(c *gin.Context) (*Image, bool) {
	filename := filepath.Base(c.Param("filename"))
	img, err := s.store.ByFilename(filename)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		} else {
			logger.Error("image lookup failed", "file", filename, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		}
		return nil, false
	}
	return img, true
}

// handleUpload accepts a snapshot from a capture client. Validation
// and the revision dedup check run synchronously; the write (and, for
// raw frames, the annotation stages) happens after the 202 response
// and the directory watcher indexes the result. A frame arriving with
// embedded metadata is a finished artifact and is stored as sent; a
// raw frame is paired with the metadata form field and run through
// Process first.
func (s *Server) handleUpload(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing image field"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read image"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	var formMeta *gitmeta.CommitMetadata
	if field := c.PostForm("metadata"); field != "" {
		formMeta = &gitmeta.CommitMetadata{}
		if err := json.Unmarshal([]byte(field), formMeta); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed metadata field"})
			return
		}
	}

	embedded, found, err := metapng.Extract(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not a valid PNG"})
		return
	}
	meta := formMeta
	if found {
		meta = &embedded
	}

	force := c.Query("force") == "true"
	if meta != nil && meta.Revision != "" && !force {
		if existing, err := s.store.ByRevision(meta.Revision); err == nil {
			c.JSON(http.StatusOK, gin.H{
				"duplicate": true,
				"filename":  existing.Filename,
			})
			return
		}
	}

	if !found && formMeta != nil && s.Process != nil {
		s.acceptRaw(c, data, formMeta)
		return
	}

	filename := filepath.Base(header.Filename)
	if filepath.Ext(filename) != ".png" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .png uploads are accepted"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"filename": filename})

	revision := ""
	if meta != nil {
		revision = meta.Revision
	}
	go s.persistUpload(filename, data, revision)
}

// acceptRaw responds 202 for a raw frame and runs the annotation
// stages in the background. The filename is derived server-side so it
// matches locally produced artifacts.
func (s *Server) acceptRaw(c *gin.Context, data []byte, meta *gitmeta.CommitMetadata) {
	filename := pipeline.Filename(meta, time.Now())
	c.JSON(http.StatusAccepted, gin.H{"filename": filename, "processed": true})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		frame, err := decodeRGBA(data)
		if err != nil {
			logger.Error("failed to decode upload", "file", filename, "error", err)
			return
		}
		out, err := s.Process(ctx, frame, meta)
		if err != nil {
			logger.Error("failed to process upload", "file", filename, "error", err)
			return
		}
		s.persistUpload(filename, out, meta.Revision)
	}()
}

func (s *Server) persistUpload(filename string, data []byte, revision string) {
	if _, err := s.writer.Write(filename, data); err != nil {
		logger.Error("failed to store upload", "file", filename, "error", err)
		return
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:   events.EventUploadReceived,
			Source: "api",
			Data: map[string]interface{}{
				"filename": filename,
				"revision": revision,
			},
		})
	}
}

func decodeRGBA(data []byte) (*image.RGBA, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

// handleConfig exposes the client-relevant settings.
func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"thumbnail_width": s.cfg.ThumbnailWidth,
		"database_type":   s.cfg.DatabaseType,
		"watch_dir":       s.cfg.WatchDir,
	})
}

func (s *Server) handleSystem(c *gin.Context) {
	info := gin.H{}

	if hostInfo, err := host.Info(); err == nil {
		info["hostname"] = hostInfo.Hostname
		info["os"] = hostInfo.OS
		info["platform"] = hostInfo.Platform
		info["uptime_seconds"] = hostInfo.Uptime
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info["memory_total"] = vm.Total
		info["memory_used_percent"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		info["cpu_percent"] = percents[0]
	}
	if usage, err := disk.Usage(s.cfg.DataDir); err == nil {
		info["disk_total"] = usage.Total
		info["disk_used_percent"] = usage.UsedPercent
	}

	c.JSON(http.StatusOK, info)
}

// handleEvents streams bus events to a websocket client.
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := make(chan events.Event, 64)
	sub := s.bus.Subscribe(events.Filter{}, func(e events.Event) error {
		select {
		case send <- e:
		default:
			// Slow client; drop rather than stall the bus.
		}
		return nil
	})
	defer s.bus.Unsubscribe(sub.ID)

	// Reader goroutine detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, e := range s.bus.Recent() {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case e := <-send:
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}
