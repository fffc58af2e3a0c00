package round

// View is what a single player may see while deciding a phase.
type View struct {
	Round  int          `json:"round"`
	Self   PlayerRecord `json:"self"`
	Group  GroupRecord  `json:"group"`
	Others []OtherView  `json:"others"`
}

// OtherView exposes another member's public state. Contribution is zero
// until the contribution stage has settled.
type OtherView struct {
	Player       PlayerID `json:"player"`
	Contribution float64  `json:"contribution"`
	Power        float64  `json:"power"`
}

// OthersAverageContribution is the group mean shown on the punishment screen,
// including the viewer's own contribution.
func (v View) OthersAverageContribution() float64 {
	n := len(v.Others) + 1
	sum := v.Self.Contribution
	for _, o := range v.Others {
		sum += o.Contribution
	}
	return sum / float64(n)
}
