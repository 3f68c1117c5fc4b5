// Package model はドメインモデルを定義する。
package model

import "time"

// Event はユーザーが所有するイベントを表す。
// DescriptionHTMLは保存時にサニタイズ済みのHTMLフラグメント。
type Event struct {
	ID              string
	OwnerID         string
	Name            string
	Date            time.Time
	Location        string
	MaxParticipants int
	DescriptionHTML string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ContactMessage は問い合わせフォームから送信されたメッセージを表す。
type ContactMessage struct {
	ID        string
	Name      string
	Email     string
	Message   string
	CreatedAt time.Time
}

// DashboardMetrics はダッシュボードに表示する集計値を表す。
type DashboardMetrics struct {
	TotalEvents       int
	TotalParticipants int
	UpcomingEvents    int
}
