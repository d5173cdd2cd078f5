/*
Package main implements dnsgate - a filtering DNS forwarder for home and
edge gateways.

dnsgate listens for DNS queries over UDP and decides per query whether the
requested name is policy-denied. Blocked names receive a synthesized
answer pointing at a configurable sentinel address; everything else is
forwarded to one of the configured upstream resolvers, chosen by target
rule, and the result is cached.

Features:

  - Blacklist/whitelist rule files with label-aligned suffix matching
  - A conservative random-domain heuristic for DGA and tracking names
  - Per-target upstream routing with a mandatory default resolver
  - Bounded answer cache with TTL caps and LRU eviction
  - Client access lists and per-client rate limiting
  - HTTP status page, JSON admin API and Prometheus metrics
  - Interactive admin console and automatic rule reloading

Architecture:

A single receiver goroutine owns the UDP socket: it parses each datagram,
refuses what should never reach a worker and enqueues the rest as jobs. A
fixed pool of workers applies the policy chain (whitelist, heuristic,
blacklist), consults the answer cache and emits the response datagram.
The cache forwards misses to the routed upstream synchronously, collapsing
identical in-flight lookups.
*/
package main
