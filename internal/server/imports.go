package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fuelimport/internal/mapper"
	"fuelimport/internal/parser/csv"
	"fuelimport/internal/pipeline"
	"fuelimport/internal/skiplog"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, APIError{Code: code, Message: msg})
}

// handleImport runs one import job from a multipart upload:
//
//	file         the CSV export (required)
//	mapping      JSON or YAML column mapping (optional when configured)
//	delimiter    "," or ";" (optional)
//	batch_size, concurrency, high_jump_km, high_volume_l,
//	price_deviation_pct, dry_run, job (optional overrides)
func (s *Server) handleImport(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "TooLarge", fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes))
			return
		}
		respondError(c, http.StatusBadRequest, "MissingFile", "multipart field \"file\" is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "UnreadableFile", err.Error())
		return
	}
	var buf bytes.Buffer
	_, err = io.Copy(&buf, f)
	f.Close()
	if err != nil {
		respondError(c, http.StatusBadRequest, "UnreadableFile", err.Error())
		return
	}

	mapping := s.cfg.Mapping
	if raw := strings.TrimSpace(c.PostForm("mapping")); raw != "" {
		mapping, err = mapper.ParseMapping([]byte(raw))
		if err != nil {
			respondError(c, http.StatusUnprocessableEntity, "InvalidMapping", err.Error())
			return
		}
	}
	if len(mapping) == 0 {
		respondError(c, http.StatusBadRequest, "MissingMapping", "no column mapping supplied or configured")
		return
	}

	opt, err := s.requestOptions(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "InvalidOption", err.Error())
		return
	}

	res, err := s.pipe.ImportCSV(c.Request.Context(), buf.Bytes(), mapping, opt)
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			respondError(c, http.StatusUnprocessableEntity, string(pe.Kind), pe.Error())
			return
		}
		respondError(c, http.StatusUnprocessableEntity, "InvalidMapping", err.Error())
		return
	}
	s.logger.Printf("server: import job=%s file=%q total=%d imported=%d", res.JobID, fh.Filename, res.TotalRows, res.ImportedCount)

	if c.Query("format") == "csv" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=rejects-%s.csv", res.JobID))
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		if _, err := skiplog.Write(c.Writer, res, true); err != nil {
			s.logger.Printf("server: write rejects job=%s: %v", res.JobID, err)
		}
		return
	}
	c.JSON(http.StatusOK, res)
}

// requestOptions overlays the form overrides on the configured defaults.
func (s *Server) requestOptions(c *gin.Context) (pipeline.Options, error) {
	opt := s.cfg.Defaults
	if v := c.PostForm("job"); v != "" {
		opt.Job = v
	}
	switch d := c.PostForm("delimiter"); d {
	case "":
	case ",", ";":
		opt.Delimiter = rune(d[0])
	default:
		return opt, fmt.Errorf("delimiter must be \",\" or \";\", got %q", d)
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"batch_size", &opt.BatchSize},
		{"concurrency", &opt.Concurrency},
	}
	for _, f := range ints {
		if v := c.PostForm(f.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return opt, fmt.Errorf("%s must be a positive integer, got %q", f.name, v)
			}
			*f.dst = n
		}
	}
	if v := c.PostForm("high_jump_km"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return opt, fmt.Errorf("high_jump_km must be a positive integer, got %q", v)
		}
		opt.HighJumpKm = n
	}

	decs := []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"high_volume_l", &opt.HighVolumeL},
		{"price_deviation_pct", &opt.PriceDeviationPct},
	}
	for _, f := range decs {
		if v := c.PostForm(f.name); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil || !d.IsPositive() {
				return opt, fmt.Errorf("%s must be a positive number, got %q", f.name, v)
			}
			*f.dst = d
		}
	}
	if v := c.PostForm("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opt, fmt.Errorf("dry_run must be a boolean, got %q", v)
		}
		opt.DryRun = b
	}
	return opt, nil
}
