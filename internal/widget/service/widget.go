package service

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/lk2023060901/chunkjson/internal/pkg/errors"
	"github.com/lk2023060901/chunkjson/internal/pkg/logger"
	"github.com/lk2023060901/chunkjson/internal/pkg/response"
	"github.com/lk2023060901/chunkjson/internal/reassembly"
	"github.com/lk2023060901/chunkjson/internal/widget/biz"
)

// Export response headers carry the reassembly outcome next to the raw document.
const (
	HeaderExportID      = "X-Export-ID"
	HeaderFragmentCount = "X-Fragment-Count"
	HeaderValidJSON     = "X-Valid-JSON"
	HeaderCache         = "X-Cache"
)

type WidgetService struct {
	widgets *biz.WidgetUseCase
	export  *biz.ExportUseCase
	logger  *logger.Logger
}

func NewWidgetService(widgets *biz.WidgetUseCase, export *biz.ExportUseCase, log *logger.Logger) *WidgetService {
	if log == nil {
		log = logger.L()
	}
	return &WidgetService{
		widgets: widgets,
		export:  export,
		logger:  log.Named("widget-service"),
	}
}

// RegisterRoutes mounts the widget endpoints on rg.
func (s *WidgetService) RegisterRoutes(rg *gin.RouterGroup) {
	widgets := rg.Group("/widgets")
	{
		widgets.POST("/seed", s.Seed)
		widgets.GET("/count", s.Count)
		widgets.GET("/export", s.Export)
		widgets.DELETE("", s.Truncate)
	}
}

type SeedRequest struct {
	Count int `json:"count" binding:"required,min=1,max=100000"`
}

type SeedResponse struct {
	Added int   `json:"added"`
	Total int64 `json:"total"`
}

func (s *WidgetService) Seed(c *gin.Context) {
	var req SeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, apperrors.ErrInvalidParams, err.Error())
		return
	}

	total, err := s.widgets.Seed(c.Request.Context(), req.Count)
	if err != nil {
		s.logger.WithContext(c.Request.Context()).Error("failed to seed widgets", zap.Error(err))
		response.HandleError(c, err)
		return
	}

	response.Created(c, SeedResponse{Added: req.Count, Total: total})
}

func (s *WidgetService) Count(c *gin.Context) {
	n, err := s.widgets.Count(c.Request.Context())
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, gin.H{"count": n})
}

func (s *WidgetService) Truncate(c *gin.Context) {
	n, err := s.widgets.Truncate(c.Request.Context())
	if err != nil {
		s.logger.WithContext(c.Request.Context()).Error("failed to truncate widgets", zap.Error(err))
		response.HandleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": n})
}

// Export streams the reassembled document. With format=report the
// document is wrapped in the standard response with its reassembly metadata.
// An invalid document is returned as text with status 422.
func (s *WidgetService) Export(c *gin.Context) {
	opts, err := exportOptions(c)
	if err != nil {
		response.ErrorWithCode(c, apperrors.ErrInvalidParams, err.Error())
		return
	}
	report := c.DefaultQuery("format", "document") == "report"
	opts.Decode = report

	res, err := s.export.Export(c.Request.Context(), opts)
	if err != nil {
		log := s.logger.WithContext(c.Request.Context())
		if code := apperrors.ExtractCode(err); apperrors.IsClientError(code) {
			log.Warn("export rejected", zap.Error(err))
		} else if apperrors.IsServerError(code) {
			log.Error("export failed", zap.Error(err))
		}
		response.HandleError(c, err)
		return
	}

	if report {
		response.Success(c, res)
		return
	}

	c.Header(HeaderExportID, res.ID)
	c.Header(HeaderFragmentCount, strconv.Itoa(res.Result.FragmentCount))
	c.Header(HeaderValidJSON, strconv.FormatBool(res.Result.IsValidJSON))
	if res.Cached {
		c.Header(HeaderCache, "hit")
	} else {
		c.Header(HeaderCache, "miss")
	}

	if !res.Result.IsValidJSON {
		response.Text(c, http.StatusUnprocessableEntity, res.Result.Text)
		return
	}
	response.Document(c, res.Result.Text)
}

func exportOptions(c *gin.Context) (biz.ExportOptions, error) {
	var opts biz.ExportOptions
	var err error

	if v := c.Query("chunked"); v != "" {
		if opts.Chunked, err = strconv.ParseBool(v); err != nil {
			return opts, err
		}
	}
	if v := c.Query("length"); v != "" {
		if opts.FragmentLength, err = strconv.Atoi(v); err != nil {
			return opts, err
		}
		if opts.FragmentLength < 1 || opts.FragmentLength > reassembly.MaxFragmentLength {
			return opts, fmt.Errorf("length must be between 1 and %d", reassembly.MaxFragmentLength)
		}
	}
	if v := c.Query("nocache"); v != "" {
		if opts.SkipCache, err = strconv.ParseBool(v); err != nil {
			return opts, err
		}
	}
	opts.Terminal = c.Query("terminal")
	return opts, nil
}
