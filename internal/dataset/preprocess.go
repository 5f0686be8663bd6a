package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"netrisk/internal/features"
	"netrisk/internal/models"
)

// Source columns of the cleaned CICIDS2017 export.
const (
	ColFwdTotalLength = "Total Length of Fwd Packets"
	ColBwdLengthMean  = "Bwd Packet Length Mean"
	ColLengthMean     = "Packet Length Mean"
	ColLengthStd      = "Packet Length Std"
	ColAttackType     = "Attack Type"
)

// Row is one processed training example.
type Row struct {
	Length     float64
	PacketMean float64
	PacketStd  float64
	Risk       models.Risk
}

// Values returns the row in features.Columns order.
func (r Row) Values() []float64 {
	return []float64{r.Length, r.PacketMean, r.PacketStd}
}

// ReadFlows parses a CICIDS2017 style CSV and derives one Row per flow.
// Non-finite or unparsable numeric cells count as 0.
func ReadFlows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	index := map[string]int{}
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	cols := []string{ColFwdTotalLength, ColBwdLengthMean, ColLengthMean, ColLengthStd, ColAttackType}
	pos := make([]int, len(cols))
	for i, name := range cols {
		p, ok := index[name]
		if !ok {
			return nil, errors.Errorf("missing column %q", name)
		}
		pos[i] = p
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		cell := func(i int) string {
			if pos[i] < len(rec) {
				return rec[pos[i]]
			}
			return ""
		}
		rows = append(rows, Row{
			Length:     number(cell(0)) + number(cell(1)),
			PacketMean: number(cell(2)),
			PacketStd:  number(cell(3)),
			Risk:       RiskForLabel(cell(4)),
		})
	}
	return rows, nil
}

// WriteProcessed writes rows as the processed CSV (length, packet_mean, packet_std, risk).
func WriteProcessed(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string(nil), features.Columns...), "risk")); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatFloat(r.Length, 'g', -1, 64),
			strconv.FormatFloat(r.PacketMean, 'g', -1, 64),
			strconv.FormatFloat(r.PacketStd, 'g', -1, 64),
			string(r.Risk),
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "write row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush")
}

// Matrix splits rows into model inputs and class indices.
func Matrix(rows []Row) ([][]float64, []int) {
	x := make([][]float64, len(rows))
	y := make([]int, len(rows))
	for i, r := range rows {
		x[i] = r.Values()
		y[i] = ClassIndex(r.Risk)
	}
	return x, y
}

// Split shuffles rows with seed and holds out testFrac of them.
func Split(rows []Row, testFrac float64, seed uint64) (train, test []Row) {
	shuffled := append([]Row(nil), rows...)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	n := int(math.Round(float64(len(shuffled)) * testFrac))
	if n < 0 {
		n = 0
	}
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[n:], shuffled[:n]
}

// Counts tallies rows per tier.
func Counts(rows []Row) map[models.Risk]int {
	out := make(map[models.Risk]int, len(Classes))
	for _, r := range rows {
		out[r.Risk]++
	}
	return out
}

func number(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
