// Package httpapi exposes a board over HTTP with JSON bodies. Scalars use
// the {"f64": x}, {"int": n} and {"bool": b} envelopes; channel lists are
// {"channels": [...]}.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"hvboard/core"
)

// Board is the part of board.Client the routes use.
type Board interface {
	ChannelCount() (int, error)
	StateOfChannels() ([]bool, error)
	SetStateOfChannels(states []bool) error
	Discover() (int, error)

	State() (core.BoardState, error)
	SetVoltage(v float64) error
	SetFrequency(f float64) error
	SetOutputEnabled(enabled bool) error

	Config() (core.BoardConfig, error)
	UpdateConfig(cfg core.BoardConfig) error
	SaveConfig() error
}

// FloatT is the {"f64": x} envelope.
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is the {"int": n} envelope.
type IntT struct {
	Int int `json:"int"`
}

// BoolT is the {"bool": b} envelope.
type BoolT struct {
	Bool bool `json:"bool"`
}

// ChannelsT carries one entry per channel.
type ChannelsT struct {
	Channels []bool `json:"channels"`
}

// NewRouter builds the route table for b.
func NewRouter(b Board) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/channels/count", getInt(b.ChannelCount))
	r.Get("/channels", getChannels(b))
	r.Post("/channels", setChannels(b))
	r.Post("/discover", getInt(b.Discover))

	r.Get("/voltage", getFloat(func() (float64, error) {
		s, err := b.State()
		return float64(s.Voltage), err
	}))
	r.Post("/voltage", setFloat(b.SetVoltage))
	r.Get("/frequency", getFloat(func() (float64, error) {
		s, err := b.State()
		return float64(s.Frequency), err
	}))
	r.Post("/frequency", setFloat(b.SetFrequency))
	r.Get("/output", getBool(func() (bool, error) {
		s, err := b.State()
		return s.OutputEnabled, err
	}))
	r.Post("/output", setBool(b.SetOutputEnabled))

	r.Get("/config", getConfig(b))
	r.Post("/config", setConfig(b))
	r.Post("/config/save", func(w http.ResponseWriter, r *http.Request) {
		if err := b.SaveConfig(); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// fail writes err with a status derived from its error code.
func fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch core.CodeOf(err) {
	case core.ErrOutOfRange, core.ErrBadLength, core.ErrBadAddress:
		status = http.StatusBadRequest
	case core.ErrUnsupported:
		status = http.StatusNotImplemented
	}
	http.Error(w, err.Error(), status)
}

func respond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func getFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, FloatT{F64: f})
	}
}

func setFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := fcn(f.F64); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func getInt(fcn func() (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := fcn()
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, IntT{Int: i})
	}
}

func getBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, BoolT{Bool: b})
	}
}

func setBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := BoolT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := fcn(b.Bool); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func getChannels(b Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		states, err := b.StateOfChannels()
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, ChannelsT{Channels: states})
	}
}

func setChannels(b Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := ChannelsT{}
		err := json.NewDecoder(r.Body).Decode(&c)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := b.SetStateOfChannels(c.Channels); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func getConfig(b Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := b.Config()
		if err != nil {
			fail(w, err)
			return
		}
		respond(w, cfg)
	}
}

// setConfig merges the posted fields over the current configuration.
func setConfig(b Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := b.Config()
		if err != nil {
			fail(w, err)
			return
		}
		err = json.NewDecoder(r.Body).Decode(&cfg)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := b.UpdateConfig(cfg); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
