package main

import (
	"log"

	"github.com/slack-go/slack"
)

func main() {
	cfg := LoadConfig()

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	classifier := NewClassifier(AnalyzerForConfig(cfg), cfg.Classifier())

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
	)

	StartDriftScanScheduler(cfg, db, api)

	log.Println("Starting Scope Bot...")
	if err := StartSlackBot(cfg, db, classifier, api); err != nil {
		log.Fatalf("Slack bot error: %v", err)
	}
}
