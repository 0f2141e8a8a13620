// Package infra groups the adapters behind the core ports: the paho MQTT
// transport, the OSRM and Google routers, the Redis route cache, the
// Postgres and SQLite stores, the predictor client, Kafka fan-out and the
// Prometheus and InfluxDB exporters.
package infra
