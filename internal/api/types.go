package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
)

// District is one entry of the authority's district listing for a city.
type District struct {
	ID     flexID `json:"IlceID"`
	Name   string `json:"IlceAdi"`
	NameEn string `json:"IlceAdiEn"`
}

// authorityDay is one day of the authority's yearly payload.
// Times may carry a zone suffix which prayer parsing strips.
type authorityDay struct {
	Date   string `json:"MiladiTarihKisa"` // DD.MM.YYYY
	Imsak  string `json:"Imsak"`
	Gunes  string `json:"Gunes"`
	Ogle   string `json:"Ogle"`
	Ikindi string `json:"Ikindi"`
	Aksam  string `json:"Aksam"`
	Yatsi  string `json:"Yatsi"`
}

func (d authorityDay) times() prayer.Times {
	return prayer.Times{
		prayer.Imsak:  d.Imsak,
		prayer.Gunes:  d.Gunes,
		prayer.Ogle:   d.Ogle,
		prayer.Ikindi: d.Ikindi,
		prayer.Aksam:  d.Aksam,
		prayer.Yatsi:  d.Yatsi,
	}
}

// mirrorDay is one day of a mirror payload.
type mirrorDay struct {
	Date   string `json:"date"`
	Imsak  string `json:"imsak"`
	Gunes  string `json:"gunes"`
	Ogle   string `json:"ogle"`
	Ikindi string `json:"ikindi"`
	Aksam  string `json:"aksam"`
	Yatsi  string `json:"yatsi"`
}

func (d mirrorDay) times() prayer.Times {
	return prayer.Times{
		prayer.Imsak:  d.Imsak,
		prayer.Gunes:  d.Gunes,
		prayer.Ogle:   d.Ogle,
		prayer.Ikindi: d.Ikindi,
		prayer.Aksam:  d.Aksam,
		prayer.Yatsi:  d.Yatsi,
	}
}

// flexID accepts an id encoded either as a JSON string or a number.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// isoDateLayout is accepted from mirrors in addition to DD.MM.YYYY.
const isoDateLayout = "2006-01-02"

// normalizeDateKey returns raw as a DD.MM.YYYY key, or false when it is
// neither DD.MM.YYYY nor YYYY-MM-DD.
func normalizeDateKey(raw string) (string, bool) {
	if t, err := time.Parse(prayer.DateLayout, raw); err == nil {
		return prayer.DateKey(t), true
	}
	if t, err := time.Parse(isoDateLayout, raw); err == nil {
		return prayer.DateKey(t), true
	}
	return "", false
}
