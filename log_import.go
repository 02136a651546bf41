package main

import "github.com/sirupsen/logrus"

// LoadLog parses data into the pending import. The active import is not
// touched until ConfirmImport.
func (m *Model) LoadLog(name string, data []byte) error {
	imp, err := m.parseLog(name, data)
	if err != nil {
		return err
	}
	m.logbook.Pending = imp
	m.metrics.RecordImportStage("loaded")
	return nil
}

// ConfirmImport makes the pending import active, replacing the previous one
func (m *Model) ConfirmImport() error {
	if m.logbook.Pending == nil {
		return ErrNoPendingImport
	}
	m.activate(m.logbook.Pending)
	m.logbook.Pending = nil
	return nil
}

func (m *Model) activate(imp *LogImport) {
	m.logbook.Active = imp
	m.metrics.SetLogbookEntries(len(imp.Entries))
	m.metrics.RecordImportStage("activated")
	m.log.WithFields(logrus.Fields{
		"name":    imp.Name,
		"entries": len(imp.Entries),
		"skipped": len(imp.Errors),
	}).Info("Log import active")
}

// CancelImport clears both the pending and the active import, so every
// cross-check flag reads neutral.
func (m *Model) CancelImport() {
	m.logbook = Logbook{}
	m.metrics.SetLogbookEntries(0)
	m.metrics.RecordImportStage("cleared")
}

// ImportLog parses data and activates it immediately. A pending import is left alone.
func (m *Model) ImportLog(name string, data []byte) error {
	imp, err := m.parseLog(name, data)
	if err != nil {
		return err
	}
	m.activate(imp)
	return nil
}

func (m *Model) parseLog(name string, data []byte) (*LogImport, error) {
	imp, err := LoadLogData(name, data, m.cty)
	if err != nil {
		m.log.WithError(err).WithField("name", name).Warn("Log import failed")
		return nil, err
	}
	for _, recErr := range imp.Errors {
		m.log.WithError(recErr).WithField("name", name).Warn("Skipping log record")
	}
	m.metrics.RecordImportRecordErrors(len(imp.Errors))
	return imp, nil
}
