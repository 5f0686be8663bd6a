// Package features turns packet metadata into the numeric vector the risk model consumes.
package features

// Vector is the fixed-shape model input.
//
// The model is trained on aggregate flow statistics (mean and standard deviation of packet
// lengths across a flow) while live inference only sees one packet. PacketMean and PacketStd
// are therefore heuristic stand-ins derived from the packet length. Closing that gap needs a
// different feature set end to end, so the approximation is kept deliberately.
type Vector struct {
	Length     float64
	PacketMean float64
	PacketStd  float64
}

// Extract derives the feature vector for a packet of the given byte length.
func Extract(length int) Vector {
	l := float64(length)
	return Vector{
		Length:     l,
		PacketMean: l / 2,
		PacketStd:  l / 4,
	}
}

// Slice returns the vector in model column order: length, packet_mean, packet_std.
func (v Vector) Slice() []float64 {
	return []float64{v.Length, v.PacketMean, v.PacketStd}
}

// Columns names the model input columns in Slice order.
var Columns = []string{"length", "packet_mean", "packet_std"}
