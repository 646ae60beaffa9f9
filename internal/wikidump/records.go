// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package wikidump

import (
	"fmt"
	"regexp"
)

// Article is a page in namespace 0 that is not a redirect.
// Page identifiers are only unique within one language edition.
type Article struct {
	ID        int64  `gorm:"column:page_id;primaryKey;autoIncrement:false"`
	Title     string `gorm:"column:title;not null;index:idx_articles_title_language,priority:1"`
	Length    int64  `gorm:"column:length;not null"`
	Language  string `gorm:"column:language;primaryKey;size:16;index:idx_articles_title_language,priority:2"`
	ViewCount *int64 `gorm:"column:view_count"`
}

func (Article) TableName() string { return "articles" }

// Category is a page in namespace 14. Like articles, categories
// are identified by the pair (identifier, language).
type Category struct {
	ID       int64  `gorm:"column:category_id;primaryKey;autoIncrement:false"`
	Title    string `gorm:"column:title;not null;index:idx_categories_title_language,priority:1"`
	Language string `gorm:"column:language;primaryKey;size:16;index:idx_categories_title_language,priority:2"`
}

func (Category) TableName() string { return "categories" }

// CategoryLink tells that a subcategory belongs to a parent category.
// The subcategory is given by page identifier, the parent by its title.
type CategoryLink struct {
	Subcategory int64  `gorm:"column:subcategory;not null;index:idx_category_links_subcategory"`
	Parent      string `gorm:"column:parent_category;not null;index:idx_category_links_parent,priority:1"`
	Language    string `gorm:"column:language;size:16;not null;index:idx_category_links_parent,priority:2"`
}

func (CategoryLink) TableName() string { return "category_links" }

// PageCategoryLink tells that an article belongs to a category.
type PageCategoryLink struct {
	Page     int64  `gorm:"column:page_id;not null"`
	Category string `gorm:"column:category;not null;index:idx_page_category_link_category,priority:1"`
	Language string `gorm:"column:language;size:16;not null;index:idx_page_category_link_category,priority:2"`
}

func (PageCategoryLink) TableName() string { return "page_category_link" }

// LangLink tells that the page FromID in language FromLang is known
// under title ToTitle in language ToLang. Unlike page titles in the
// page table, ToTitle uses spaces instead of underscores.
type LangLink struct {
	FromLang string `gorm:"column:from_lang;size:16;not null;index:idx_lang_links_from,priority:1"`
	FromID   int64  `gorm:"column:from_id;not null;index:idx_lang_links_from,priority:2"`
	ToLang   string `gorm:"column:to_lang;size:16;not null;index:idx_lang_links_to,priority:1"`
	ToTitle  string `gorm:"column:to_title;not null;index:idx_lang_links_to,priority:2"`
}

func (LangLink) TableName() string { return "lang_links" }

var languageRegexp = regexp.MustCompile(`^[a-z][a-z0-9\-]{1,9}$`)

// CheckLanguage returns an error unless code looks like
// the language code of a Wikipedia edition, such as "en" or "zh-yue".
func CheckLanguage(code string) error {
	if !languageRegexp.MatchString(code) {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, code)
	}
	return nil
}
