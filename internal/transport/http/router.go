package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// RouterOptions configures authentication and logging for NewRouter.
type RouterOptions struct {
	SigningKey string
	Issuer     string
	Logger     logrus.FieldLogger
}

// NewRouter wires the attempt websocket and the snapshot read onto a gin engine.
func NewRouter(service *app.AttemptService, opts RouterOptions) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	auth := Identity(opts.SigningKey, opts.Issuer)
	ws := NewWSHandler(service, log)
	r.GET("/ws", auth, ws.ServeWS)

	api := r.Group("/api/v1", auth)
	api.GET("/quizzes/:quizId/attempt", func(c *gin.Context) {
		snap, err := service.Snapshot(c.Param("quizId"), c.GetString(ctxUserID))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	})
	return r
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("request")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAttemptNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
