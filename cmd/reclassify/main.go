package main

import (
	"flag"
	"fmt"
	"log"

	"testcase-management-service/internal/config"
	"testcase-management-service/internal/logger"
	"testcase-management-service/internal/repository"
	"testcase-management-service/internal/rules"
	"testcase-management-service/internal/service"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// One-shot batch tool: recompute every case's classification against the
// current rule file and persist only the rows whose classification changed.
// Used after editing category_rules.json.
func main() {
	configPath := flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Mode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	caseRepo := repository.NewTestCaseRepository(db)
	tagRepo := repository.NewTagRepository(db)
	attachRepo := repository.NewAttachmentRepository(db)
	ruleStore := rules.NewStore(cfg.Import.RulesPath, zlog)

	caseService := service.NewCaseService(db, caseRepo, tagRepo, attachRepo, ruleStore, cfg.Import.AttachmentDir, zlog)

	fmt.Println("Reclassifying test cases...")
	updated, total, err := caseService.ReclassifyAll()
	if err != nil {
		log.Fatalf("Reclassification failed after %d updates: %v", updated, err)
	}

	if total == 0 {
		fmt.Println("No test cases found.")
		return
	}
	if updated == 0 {
		fmt.Printf("Checked %d cases, all classifications already up to date.\n", total)
		return
	}
	fmt.Printf("Done: updated %d of %d cases.\n", updated, total)
}
