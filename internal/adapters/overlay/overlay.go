package overlay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alejandrodnm/scenebot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

const header = "***** LAST GAME *****\n"

// File implementa ports.SummaryWriter sobre un fichero de texto que OBS
// muestra como fuente. Cada escritura reemplaza el fichero entero.
type File struct {
	path string
}

// NewFile crea el writer. El directorio tiene que existir.
func NewFile(path string) *File {
	return &File{path: path}
}

// WriteSummary escribe la tabla "LAST GAME" del resultado. Sin estadísticas
// solo se escribe el resultado.
func (f *File) WriteSummary(_ context.Context, r domain.MatchResult) error {
	var buf bytes.Buffer
	Render(&buf, r)
	if err := f.replace(buf.Bytes()); err != nil {
		return fmt.Errorf("overlay.WriteSummary: %w", err)
	}
	slog.Debug("overlay updated", "path", f.path, "record", r.SourceRecordID)
	return nil
}

// Clear deja el fichero vacío.
func (f *File) Clear(_ context.Context) error {
	if err := f.replace(nil); err != nil {
		return fmt.Errorf("overlay.Clear: %w", err)
	}
	return nil
}

// replace escribe en un temporal del mismo directorio y lo renombra encima:
// OBS nunca lee un fichero a medio escribir.
func (f *File) replace(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".overlay-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Render escribe el resumen de la partida:
//
//	***** LAST GAME *****
//	Alcyone LE | 0:12:34
//	<tabla W/L, jugador, raza, MMR, APM>
func Render(w io.Writer, r domain.MatchResult) {
	fmt.Fprint(w, header)
	if r.Summary == nil {
		fmt.Fprintf(w, "%s\n", r.Outcome)
		return
	}
	fmt.Fprintf(w, "%s | %s\n", r.Summary.MapName, clock(r.Summary.GameLength))

	if len(r.Summary.Players) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	for _, p := range r.Summary.Players {
		status := "L"
		if p.Winner {
			status = "W"
		}
		table.Append(
			status,
			p.Name,
			p.Race,
			fmt.Sprintf("%dMMR", p.MMR),
			fmt.Sprintf("%dAPM", p.APM),
		)
	}
	table.Render()
}

// clock formatea como h:mm:ss.
func clock(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}
