package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/lysyi3m/feed-refresh/app/database"
	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
)

type Parser struct {
	gofeedParser *gofeed.Parser
	atomParser   *atom.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
		atomParser:   &atom.Parser{},
	}
}

// Run parses an RSS, Atom or JSON feed body into its metadata and entries.
// Entries without both a GUID and a link are dropped since they cannot be keyed.
func (p *Parser) Run(data []byte) (*Metadata, []database.Entry, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title: feed.Title,
		Link:  feed.Link,
		Topic: feed.FeedLink,
	}

	switch feed.FeedType {
	case "atom":
		p.atomLinks(data, metadata)
	case "rss":
		rssLinks(feed, metadata)
	}

	entries := make([]database.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entry := p.normalizeItem(item)
		if entry.GUID == "" {
			continue
		}
		entries = append(entries, entry)
	}

	return metadata, entries, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) database.Entry {
	entry := database.Entry{
		GUID:    strings.TrimSpace(cmp.Or(item.GUID, item.Link)),
		URL:     strings.TrimSpace(item.Link),
		Title:   item.Title,
		Content: cmp.Or(item.Content, item.Description),
		Author:  strings.Join(p.extractAuthors(item), ", "),
	}

	if item.PublishedParsed != nil {
		entry.Published = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		entry.Published = item.UpdatedParsed
	}

	return entry
}

// atomLinks reads rel=hub and rel=self from the raw Atom links, which the
// universal feed type flattens away.
func (p *Parser) atomLinks(data []byte, metadata *Metadata) {
	af, err := p.atomParser.Parse(bytes.NewReader(data))
	if err != nil {
		return
	}

	for _, link := range af.Links {
		if link == nil {
			continue
		}
		switch strings.ToLower(link.Rel) {
		case "hub":
			metadata.Hub = cmp.Or(metadata.Hub, link.Href)
		case "self":
			metadata.Topic = cmp.Or(link.Href, metadata.Topic)
		}
	}
}

// rssLinks reads <atom:link rel="hub"/"self"> elements from an RSS channel
func rssLinks(feed *gofeed.Feed, metadata *Metadata) {
	for _, ext := range feed.Extensions["atom"]["link"] {
		href := ext.Attrs["href"]
		switch strings.ToLower(ext.Attrs["rel"]) {
		case "hub":
			metadata.Hub = cmp.Or(metadata.Hub, href)
		case "self":
			metadata.Topic = cmp.Or(href, metadata.Topic)
		}
	}
}

func (p *Parser) extractAuthors(item *gofeed.Item) []string {
	var authors []string

	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author != nil {
				authorStr := p.formatAuthor(author.Name, author.Email)
				if authorStr != "" {
					authors = append(authors, authorStr)
				}
			}
		}
	} else if item.Author != nil {
		authorStr := p.formatAuthor(item.Author.Name, item.Author.Email)
		if authorStr != "" {
			authors = append(authors, authorStr)
		}
	}

	return authors
}

func (p *Parser) formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" && email != "" {
		return fmt.Sprintf("%s (%s)", email, name)
	} else if name != "" {
		return name
	} else if email != "" {
		return email
	}

	return ""
}
