package round

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// Digest hashes every settled field of a result in a fixed order. Two
// settlements of the same inputs produce the same digest.
func Digest(res Result) string {
	h := sha256.New()
	var tmp [8]byte

	g := res.Group
	writeInt(h, &tmp, int64(g.Round))
	h.Write([]byte(g.GroupID))
	for _, id := range g.Members {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	writeFloat(h, &tmp, g.TotalContribution)
	writeFloat(h, &tmp, g.PublicGood)
	writeFloat(h, &tmp, g.IndividualShare)
	writeFloat(h, &tmp, g.TotalPowerBefore)
	writeFloat(h, &tmp, g.TotalPowerAfter)
	h.Write([]byte{boolByte(g.TransferPhase), boolByte(g.PunishmentPhase)})

	for _, p := range res.Players {
		h.Write([]byte(p.Player))
		h.Write([]byte{0})
		writeInt(h, &tmp, int64(p.Round))
		writeFloat(h, &tmp, p.Contribution)
		writeRow(h, &tmp, p.PunishmentSent)
		writeRow(h, &tmp, p.TransferSent)
		for _, v := range []float64{
			p.PowerBefore, p.PowerAfter, p.PowerOut, p.PowerIn,
			p.AvailableBeforeContribution, p.AvailableBeforePunishment, p.AvailableAfter,
			p.IndividualShare, p.PayoffBeforePunishment,
			p.PointsSent, p.PointsReceived,
			p.PunishmentGivenCost, p.PunishmentReceivedLoss, p.TransferCost,
			p.RoundPayoff, p.CumulativePayoff,
		} {
			writeFloat(h, &tmp, v)
		}
		h.Write([]byte{boolByte(p.CostClamped)})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeRow(h hash.Hash, tmp *[8]byte, row map[PlayerID]float64) {
	keys := SortedKeys(row)
	writeInt(h, tmp, int64(len(keys)))
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		writeFloat(h, tmp, row[k])
	}
}

func writeInt(h hash.Hash, tmp *[8]byte, v int64) {
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	h.Write(tmp[:])
}

func writeFloat(h hash.Hash, tmp *[8]byte, v float64) {
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	h.Write(tmp[:])
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
