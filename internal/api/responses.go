package api

import (
	"github.com/JakeFAU/site-search/internal/indexing"
	"github.com/JakeFAU/site-search/internal/search"
)

type envelope struct {
	Result bool   `json:"result"`
	Error  string `json:"error,omitempty"`
}

type searchResponse struct {
	Result bool            `json:"result"`
	Count  int             `json:"count"`
	Data   []search.Result `json:"data"`
}

type statisticsResponse struct {
	Result     bool           `json:"result"`
	Statistics statisticsData `json:"statistics"`
}

type statisticsData struct {
	Total    totalStatistics    `json:"total"`
	Detailed []detailStatistics `json:"detailed"`
}

type totalStatistics struct {
	Sites    int  `json:"sites"`
	Pages    int  `json:"pages"`
	Lemmas   int  `json:"lemmas"`
	Indexing bool `json:"indexing"`
}

type detailStatistics struct {
	URL    string `json:"url"`
	Name   string `json:"name"`
	Status string `json:"status"`
	// StatusTime is Unix milliseconds; zero for sites never crawled.
	StatusTime int64  `json:"statusTime"`
	Error      string `json:"error,omitempty"`
	Pages      int    `json:"pages"`
	Lemmas     int    `json:"lemmas"`
}

func newStatisticsData(stats indexing.Statistics) statisticsData {
	out := statisticsData{
		Total: totalStatistics{
			Sites:    stats.Total.Sites,
			Pages:    stats.Total.Pages,
			Lemmas:   stats.Total.Lemmas,
			Indexing: stats.Total.Indexing,
		},
		Detailed: make([]detailStatistics, 0, len(stats.Detailed)),
	}
	for _, site := range stats.Detailed {
		item := detailStatistics{
			URL:    site.URL,
			Name:   site.Name,
			Status: string(site.Status),
			Error:  site.Error,
			Pages:  site.Pages,
			Lemmas: site.Lemmas,
		}
		if !site.StatusTime.IsZero() {
			item.StatusTime = site.StatusTime.UnixMilli()
		}
		out.Detailed = append(out.Detailed, item)
	}
	return out
}
