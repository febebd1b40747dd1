package handlers

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sticker-press/internal/convert"
	"sticker-press/internal/resultcache"
	"sticker-press/internal/startup"
	"sticker-press/internal/transcoder"
	"sticker-press/internal/urlstore"
	"sticker-press/internal/validate"
)

type Handlers struct {
	controller *convert.Controller
	engine     *transcoder.Engine
	cache      *resultcache.Cache
	urls       *urlstore.Store
	limits     validate.Limits
	uploadDir  string
	startTime  time.Time

	mu   sync.Mutex
	subs map[string]map[*websocket.Conn]struct{}

	upgrader websocket.Upgrader
}

func New(ctrl *convert.Controller, engine *transcoder.Engine, cache *resultcache.Cache, urls *urlstore.Store, config *startup.Config) *Handlers {
	h := &Handlers{
		controller: ctrl,
		engine:     engine,
		cache:      cache,
		urls:       urls,
		limits: validate.Limits{
			DesktopMaxBytes: config.DesktopMaxBytes,
			MobileMaxBytes:  config.MobileMaxBytes,
		},
		uploadDir: config.UploadDir,
		startTime: time.Now(),
		subs:      make(map[string]map[*websocket.Conn]struct{}),
		upgrader:  websocket.Upgrader{},
	}

	// Every job state change fans out to that job's WebSocket subscribers.
	ctrl.Subscribe(h.broadcast)

	return h
}
