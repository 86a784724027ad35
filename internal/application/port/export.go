package port

import (
	"io"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/stats"
)

// RegisterExporter renders a set of records and their statistics as a document
type RegisterExporter interface {
	Export(w io.Writer, records []*entity.Imprest, summary stats.Stats) error
	ContentType() string
	Extension() string
}
