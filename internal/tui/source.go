package tui

import (
	"netrisk/internal/analysis"
	"netrisk/internal/models"
	"netrisk/internal/session"
)

// ControllerSource lets the dashboard drive an in-process controller.
type ControllerSource struct {
	Controller *session.Controller
}

func (s ControllerSource) Status() (models.Status, error) {
	return s.Controller.Status(), nil
}

func (s ControllerSource) Latest(limit int) ([]models.PacketRecord, error) {
	return s.Controller.Snapshot(limit), nil
}

func (s ControllerSource) Summary(top int) (analysis.Summary, error) {
	return s.Controller.Summary(top), nil
}

func (s ControllerSource) Start(iface string) (string, error) {
	return string(s.Controller.Start(iface)), nil
}

func (s ControllerSource) Stop() (string, error) {
	return string(s.Controller.Stop()), nil
}

func (s ControllerSource) Reset() error {
	s.Controller.Reset()
	return nil
}
