package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/render"
)

type errorResponse struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Message: message})
}

// parseDimensions splits a "WIDTHxHEIGHT" string such as "100x200".
func parseDimensions(s string) (width, height int, err error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("dimensions must be WIDTHxHEIGHT, got %q", s)
	}
	width, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width %q", parts[0])
	}
	height, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height %q", parts[1])
	}
	if width < 1 || height < 1 {
		return 0, 0, fmt.Errorf("dimensions must be positive, got %q", s)
	}
	return width, height, nil
}

// formatDimensions renders width and height as "WIDTHxHEIGHT".
func formatDimensions(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}

// parseIDList splits a bracketed query value such as "[id1,id2]" into ids.
// The brackets are optional.
func parseIDList(s string) []string {
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
