package gateway

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>router usage</title>
  <style>
    body { font-family: monospace; margin: 2rem; }
    table { border-collapse: collapse; }
    td, th { padding: 0.25rem 1rem; border-bottom: 1px solid #ccc; text-align: right; }
    th:first-child, td:first-child { text-align: left; }
  </style>
</head>
<body>
  <h1>router usage</h1>
  <table id="usage"><tbody></tbody></table>
  <script>
    async function refresh() {
      const resp = await fetch('/usage', { headers: authHeader() });
      const snap = await resp.json();
      const tbody = document.querySelector('#usage tbody');
      tbody.innerHTML = '<tr><th>route</th><th>requests</th><th>withUsage</th><th>totalTokens</th><th>%</th></tr>';
      for (const [route, bucket] of Object.entries(snap.buckets || {})) {
        const pct = (snap.percentages || {})[route] || 0;
        const row = document.createElement('tr');
        row.innerHTML = '<td>' + route + '</td><td>' + bucket.requests + '</td><td>' + bucket.withUsage +
          '</td><td>' + bucket.totalTokens + '</td><td>' + pct.toFixed(1) + '</td>';
        tbody.appendChild(row);
      }
    }
    function authHeader() { return {}; }
    refresh();
    setInterval(refresh, 5000);
  </script>
</body>
</html>
`
