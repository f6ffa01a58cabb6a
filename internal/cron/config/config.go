package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Passive DNS refresh of pending and verified domains, every 15 minutes
	CronScheduleDomainStatusRefresh string `env:"CRON_SCHEDULE_DOMAIN_STATUS_REFRESH" envDefault:"0 */15 * * * *"`
}
