package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	mng "github.com/fiercefairy/PortOS-sub006/internal/manager"
)

type countResp struct {
	Count int `json:"count"`
}

type outputResp struct {
	JobID  string `json:"jobId"`
	Output string `json:"output"`
}

type terminateResp struct {
	JobID      string `json:"jobId"`
	Terminated bool   `json:"terminated"`
}

func (r *Router) handleSpawn(c *gin.Context) {
	var req mng.SpawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		badRequest(c, "command required")
		return
	}
	if !isSafeAbsPath(req.WorkDir) {
		badRequest(c, "invalid workDir: must be absolute path without traversal")
		return
	}
	res, err := r.mgr.Spawn(req)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, res)
}

func (r *Router) handleRun(c *gin.Context) {
	var req mng.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		badRequest(c, "command required")
		return
	}
	if !isSafeAbsPath(req.WorkDir) {
		badRequest(c, "invalid workDir: must be absolute path without traversal")
		return
	}
	res, err := r.mgr.Run(req)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, res)
}

func (r *Router) handleList(c *gin.Context) {
	jobs := r.mgr.ListActive()
	if jobs == nil {
		jobs = []mng.ActiveJob{}
	}
	writeJSON(c, http.StatusOK, jobs)
}

func (r *Router) handleQuery(c *gin.Context) {
	st, err := r.mgr.Query(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleOutput(c *gin.Context) {
	id := c.Param("id")
	out, err := r.mgr.Output(id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, outputResp{JobID: id, Output: out})
}

func (r *Router) handleTerminate(c *gin.Context) {
	id := c.Param("id")
	if err := r.mgr.Terminate(id); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, terminateResp{JobID: id, Terminated: true})
}

func (r *Router) handleKill(c *gin.Context) {
	res, err := r.mgr.ForceKill(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleTerminateAll(c *gin.Context) {
	writeJSON(c, http.StatusAccepted, countResp{Count: r.mgr.TerminateAll()})
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.Health())
}

// handleEvents streams hub events as SSE. Each event name is the event
// type; a ping event keeps idle connections open. A subscriber too slow to
// keep up loses events rather than stalling the supervisor.
func (r *Router) handleEvents(c *gin.Context) {
	sub := r.hub.Subscribe(r.opts.EventBuffer)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ping := time.NewTicker(r.opts.PingInterval)
	defer ping.Stop()
	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case t := <-ping.C:
			c.SSEvent("ping", gin.H{"time": t.UTC()})
			return true
		}
	})
}
