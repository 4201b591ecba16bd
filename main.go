// main.go
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LilVoxy/support_bridge/config"
	"github.com/LilVoxy/support_bridge/database"
	"github.com/LilVoxy/support_bridge/relay"
	"github.com/LilVoxy/support_bridge/routes"
	"github.com/LilVoxy/support_bridge/transport"
	"github.com/gorilla/mux"
)

func main() {
	fmt.Println("Запуск моста поддержки...")

	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Ошибка конфигурации: %v", err)
	}
	cfg.LogInfo()

	// Инициализация базы данных
	db, err := database.InitDB(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("❌ Не удалось инициализировать базу данных: %v", err)
	}
	defer db.Close()

	store := database.NewStore(db)

	// Планировщик окон накопления альбомов
	scheduler := relay.NewGocronScheduler()

	// Адаптер API платформы
	client := transport.NewClient(cfg.APIBaseURL, cfg.Token, cfg.AdminGroupID)

	// Движок пересылки
	manager := relay.NewManager(store, client, scheduler, cfg)

	// Слушатель потока обновлений
	listener := transport.NewListener(cfg.UpdatesURL, cfg.BotUsername, cfg.AdminGroupID, manager, client)
	if cfg.UpdatesURL != "" {
		go listener.Run()
	} else {
		log.Println("⚠️ Не задана переменная BRIDGE_UPDATES_URL, поток обновлений не подключен")
	}

	// Создаем маршрутизатор служебного API
	router := mux.NewRouter()
	routes.SetupRoutes(router, store)

	// Настраиваем сервер
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запускаем сервер в отдельной горутине
	go func() {
		log.Printf("✅ Служебный API запущен на http://localhost%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Ошибка запуска сервера: %v", err)
		}
	}()

	// Канал для сигналов завершения
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Ожидаем сигнал завершения
	<-stop
	log.Println("⚠️ Получен сигнал завершения, закрываем соединения...")

	// Останавливаем слушателя и планировщик
	if cfg.UpdatesURL != "" {
		listener.Stop()
	}
	scheduler.Stop()

	// Закрываем соединение с базой данных
	if err := db.Close(); err != nil {
		log.Printf("❌ Ошибка закрытия соединения с БД: %v", err)
	} else {
		log.Println("✅ Соединение с БД закрыто")
	}

	log.Println("👋 Мост остановлен")
}
