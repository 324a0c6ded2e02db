package extract

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/pable/go-val-metrics/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// flexInt decodes a JSON number, a numeric string or null. Unreadable values
// decode as 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexInt(parseLooseInt(s))
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*f = flexInt(math.Round(n))
	return nil
}

func parseLooseInt(s string) int {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil {
		return int(math.Round(x))
	}
	return 0
}

type rawPlayer struct {
	Player      string  `json:"Player"`
	ACS         flexInt `json:"ACS"`
	Kills       flexInt `json:"K"`
	Deaths      flexInt `json:"D"`
	Assists     flexInt `json:"A"`
	Econ        flexInt `json:"ECON"`
	FirstBloods flexInt `json:"FIRST BLOODS"`
	Plants      flexInt `json:"PLANTS"`
	Defuses     flexInt `json:"DEFUSES"`
}

type payload struct {
	Error       *string     `json:"error"`
	Map         *string     `json:"map"`
	Winner      string      `json:"winner" validate:"required"`
	Team1Rounds flexInt     `json:"team1_rounds"`
	Team2Rounds flexInt     `json:"team2_rounds"`
	Players     []rawPlayer `json:"players" validate:"len=10,dive"`
}

// Decode parses the extractor's stdout into a Scoreboard. Tool-reported
// errors, draws, malformed JSON and anything other than ten player rows are
// rejected with ErrExtraction. Negative round counts are clamped to 0.
func Decode(data []byte) (*model.Scoreboard, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrExtraction)
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decode output: %v", ErrExtraction, err)
	}
	if p.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrExtraction, *p.Error)
	}
	if err := validate.Struct(&p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, fmt.Errorf("%w: field %s failed %q (got %v)", ErrExtraction, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	winner, err := model.ParseWinner(p.Winner)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	sb := &model.Scoreboard{
		Winner:       winner,
		FirstRounds:  nonNegative(p.Team1Rounds),
		SecondRounds: nonNegative(p.Team2Rounds),
		Players:      make([]model.PlayerRow, 0, len(p.Players)),
	}
	if p.Map != nil {
		sb.MapName = model.NormalizeMap(*p.Map)
		if sb.MapName == model.UnknownMap {
			sb.MapName = ""
		}
	}
	for _, rp := range p.Players {
		sb.Players = append(sb.Players, model.PlayerRow{
			Name:        clampName(rp.Player),
			ACS:         nonNegative(rp.ACS),
			Kills:       nonNegative(rp.Kills),
			Deaths:      nonNegative(rp.Deaths),
			Assists:     nonNegative(rp.Assists),
			Econ:        nonNegative(rp.Econ),
			FirstBloods: nonNegative(rp.FirstBloods),
			Plants:      nonNegative(rp.Plants),
			Defuses:     nonNegative(rp.Defuses),
		})
	}
	return sb, nil
}

func nonNegative(v flexInt) int {
	if v < 0 {
		return 0
	}
	return int(v)
}

// maxNameRunes bounds OCR noise stored as a player name.
const maxNameRunes = 64

func clampName(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxNameRunes {
		return strings.TrimSpace(string(r[:maxNameRunes]))
	}
	return s
}
