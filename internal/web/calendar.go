package web

import (
	"container/list"
	"fmt"
	"strings"
	"time"

	"github.com/6tail/lunar-go/calendar"
)

// DateInfo 页眉中展示的日期信息。
type DateInfo struct {
	Solar     string   `json:"solar"`      // 2026年03月05日
	Weekday   string   `json:"weekday"`    // 星期四
	Lunar     string   `json:"lunar"`      // 正月十七
	YearGZ    string   `json:"year_ganzhi"` // 丙午
	Zodiac    string   `json:"zodiac"`     // 马
	SolarTerm string   `json:"solar_term,omitempty"`
	Festivals []string `json:"festivals,omitempty"`
}

var weekdays = [...]string{"星期日", "星期一", "星期二", "星期三", "星期四", "星期五", "星期六"}

// NewDateInfo 计算公历和农历日期、节气与节日。
func NewDateInfo(t time.Time) DateInfo {
	solar := calendar.NewSolarFromDate(t)
	lunar := solar.GetLunar()

	info := DateInfo{
		Solar:     t.Format("2006年01月02日"),
		Weekday:   weekdays[t.Weekday()],
		Lunar:     lunar.GetMonthInChinese() + "月" + lunar.GetDayInChinese(),
		YearGZ:    lunar.GetYearInGanZhi(),
		Zodiac:    lunar.GetYearShengXiao(),
		SolarTerm: lunar.GetJieQi(),
	}

	info.Festivals = appendFestivals(info.Festivals, lunar.GetFestivals())
	info.Festivals = appendFestivals(info.Festivals, solar.GetFestivals())
	return info
}

// String 如 "2026年03月05日 星期四 · 农历丙午年(马) 正月十七 · 惊蛰"。
func (d DateInfo) String() string {
	parts := []string{
		d.Solar + " " + d.Weekday,
		fmt.Sprintf("农历%s年(%s) %s", d.YearGZ, d.Zodiac, d.Lunar),
	}
	if d.SolarTerm != "" {
		parts = append(parts, d.SolarTerm)
	}
	if len(d.Festivals) > 0 {
		parts = append(parts, strings.Join(d.Festivals, "、"))
	}
	return strings.Join(parts, " · ")
}

func appendFestivals(dst []string, l *list.List) []string {
	if l == nil {
		return dst
	}
	for e := l.Front(); e != nil; e = e.Next() {
		if s, ok := e.Value.(string); ok && s != "" {
			dst = append(dst, s)
		}
	}
	return dst
}
