package feed

import (
	"encoding/xml"
	"fmt"
	"strings"
)

type rssDocument struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomFeedDocument struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID      string `xml:"id"`
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Content string `xml:"content"`
	Updated string `xml:"updated"`
	Link    struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
}

// parseFeed decodes an RSS 2.0 or Atom payload into raw entries, preserving
// document order.
func parseFeed(payload []byte) ([]entry, error) {
	root, err := rootElement(payload)
	if err != nil {
		return nil, err
	}

	switch root {
	case "rss":
		var doc rssDocument
		if err := xml.Unmarshal(payload, &doc); err != nil {
			return nil, fmt.Errorf("parse rss document: %w", err)
		}
		entries := make([]entry, 0, len(doc.Channel.Items))
		for _, item := range doc.Channel.Items {
			guid := strings.TrimSpace(item.GUID)
			if guid == "" {
				guid = strings.TrimSpace(item.Link)
			}
			entries = append(entries, entry{
				GUID:      guid,
				Title:     item.Title,
				Summary:   item.Description,
				Published: item.PubDate,
			})
		}
		return entries, nil
	case "feed":
		var doc atomFeedDocument
		if err := xml.Unmarshal(payload, &doc); err != nil {
			return nil, fmt.Errorf("parse atom document: %w", err)
		}
		entries := make([]entry, 0, len(doc.Entries))
		for _, item := range doc.Entries {
			guid := strings.TrimSpace(item.ID)
			if guid == "" {
				guid = strings.TrimSpace(item.Link.Href)
			}
			summary := item.Summary
			if strings.TrimSpace(summary) == "" {
				summary = item.Content
			}
			entries = append(entries, entry{
				GUID:      guid,
				Title:     item.Title,
				Summary:   summary,
				Published: item.Updated,
			})
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("unsupported feed root element %q", root)
	}
}

func rootElement(payload []byte) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(payload)))
	for {
		token, err := decoder.Token()
		if err != nil {
			return "", fmt.Errorf("scan feed document: %w", err)
		}
		if start, ok := token.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}
