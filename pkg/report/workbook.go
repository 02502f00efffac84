// Package report exports namespace data as a spreadsheet for offline review.
package report

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/platinummonkey/gantry/pkg/workflow"
)

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Filename is the suggested download name.
const Filename = "gantry_namespaces.xlsx"

const (
	sheetNamespaces = "Namespaces"
	sheetAccesses   = "Service Accesses"
)

// Records is the read surface the report needs. *workflow.Store satisfies it.
type Records interface {
	ListNamespaceNames(ctx context.Context) ([]string, error)
	ListEnvironmentsByNamespace(ctx context.Context, ns string) ([]workflow.Environment, error)
	ListServiceAccessesByEnvironment(ctx context.Context, ns, envID string) ([]workflow.ServiceAccess, error)
}

// WorkbookService builds the namespace report workbook.
type WorkbookService struct {
	records Records
	log     *logrus.Entry
}

// NewWorkbookService creates a report builder over the record store.
func NewWorkbookService(records Records, log *logrus.Logger) *WorkbookService {
	if log == nil {
		log = logrus.New()
	}
	return &WorkbookService{records: records, log: log.WithField("component", "report")}
}

// Build assembles the workbook: one sheet summarizing namespaces, one
// listing every service access grant.
func (s *WorkbookService) Build(ctx context.Context) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", sheetNamespaces)
	if _, err := f.NewSheet(sheetAccesses); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := f.SetSheetRow(sheetNamespaces, "A1", &[]interface{}{"Namespace", "Environments", "Consumers"}); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheetAccesses, "A1", &[]interface{}{"Namespace", "Environment", "Flow", "Access Name", "Consumer", "Active"}); err != nil {
		return nil, err
	}

	names, err := s.records.ListNamespaceNames(ctx)
	if err != nil {
		return nil, err
	}

	nsRow := 2
	accessRow := 2
	for _, ns := range names {
		envs, err := s.records.ListEnvironmentsByNamespace(ctx, ns)
		if err != nil {
			return nil, err
		}

		consumers := 0
		for _, env := range envs {
			accesses, err := s.records.ListServiceAccessesByEnvironment(ctx, ns, env.ID)
			if err != nil {
				return nil, err
			}
			consumers += len(accesses)

			for _, access := range accesses {
				consumer := ""
				if access.Consumer != nil {
					consumer = access.Consumer.Username
				}
				row := []interface{}{ns, env.Name, env.Flow, access.Name, consumer, access.Active}
				if err := f.SetSheetRow(sheetAccesses, fmt.Sprintf("A%d", accessRow), &row); err != nil {
					return nil, err
				}
				accessRow++
			}
		}

		row := []interface{}{ns, len(envs), consumers}
		if err := f.SetSheetRow(sheetNamespaces, fmt.Sprintf("A%d", nsRow), &row); err != nil {
			return nil, err
		}
		nsRow++
	}

	s.log.WithFields(logrus.Fields{"namespaces": len(names), "accesses": accessRow - 2}).Debug("report built")
	return f, nil
}

// Write streams the workbook to w.
func (s *WorkbookService) Write(ctx context.Context, w io.Writer) error {
	f, err := s.Build(ctx)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
