package console

// The console pages are compiled in rather than served from disk so the
// daemon stays a single binary. Each page is static; dynamic values are
// fetched from the API endpoints by the inline scripts.

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>packmon</title>
<style>
body{font-family:Arial,sans-serif;background:#f5f5f5;margin:0}
.card{background:white;max-width:560px;margin:48px auto;padding:32px;border-radius:8px;box-shadow:0 2px 4px rgba(0,0,0,0.1)}
h1{margin-top:0;font-size:24px}
.mode{font-size:20px;font-weight:bold}
.mode.processing{color:#4CAF50}
.mode.config{color:#FF9800}
.mode.init{color:#2196F3}
nav a{margin-right:16px}
p{color:#666}
</style>
</head>
<body>
<div class="card">
<h1>Battery Pack Monitor</h1>
<p>Mode: <span id="mode" class="mode">...</span></p>
<p>Uptime: <span id="uptime">...</span> s</p>
<nav>
<a href="/stats">Statistics</a>
<a href="/config">Configuration</a>
</nav>
</div>
<script>
function refresh(){
  fetch('/healthz').then(function(r){return r.json()}).then(function(h){
    var m=document.getElementById('mode');
    m.textContent=h.mode;
    m.className='mode '+h.mode;
    document.getElementById('uptime').textContent=h.uptime_seconds;
  });
}
refresh();
setInterval(refresh,2000);
</script>
</body>
</html>
`

const statsHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>packmon - statistics</title>
<style>
body{font-family:Arial,sans-serif;background:#f5f5f5;margin:0}
.card{background:white;max-width:960px;margin:32px auto;padding:24px;border-radius:8px;box-shadow:0 2px 4px rgba(0,0,0,0.1)}
h1{margin-top:0;font-size:22px}
table{border-collapse:collapse;width:100%;font-size:13px}
th,td{border:1px solid #ddd;padding:4px 8px;text-align:right}
th{background:#fafafa}
tr.flagged td{background:#fff3e0}
#live{color:#4CAF50;font-weight:bold}
a{font-size:14px}
</style>
</head>
<body>
<div class="card">
<h1>Statistics <span id="live"></span></h1>
<p><a href="/">Back</a></p>
<table>
<thead>
<tr><th>Tick</th><th>Samples</th><th>Flags</th><th>Pack V avg</th><th>Pack V min</th><th>Pack V max</th><th>Pack I avg</th><th>Pack I min</th><th>Pack I max</th></tr>
</thead>
<tbody id="rows"></tbody>
</table>
</div>
<script>
var maxRows=240;
function fmt(x){return x.toFixed(3)}
function row(w){
  var tr=document.createElement('tr');
  if((w.cell_errors&~1)!==0){tr.className='flagged'}
  tr.innerHTML='<td>'+w.timestamp+'</td><td>'+w.sample_count+'</td><td>0x'+w.cell_errors.toString(16)+'</td>'+
    '<td>'+fmt(w.pack_v_avg)+'</td><td>'+fmt(w.pack_v_min)+'</td><td>'+fmt(w.pack_v_max)+'</td>'+
    '<td>'+fmt(w.pack_i_avg)+'</td><td>'+fmt(w.pack_i_min)+'</td><td>'+fmt(w.pack_i_max)+'</td>';
  return tr;
}
function append(w){
  var rows=document.getElementById('rows');
  rows.insertBefore(row(w),rows.firstChild);
  while(rows.childNodes.length>maxRows){rows.removeChild(rows.lastChild)}
}
fetch('/api/stats').then(function(r){return r.json()}).then(function(ws){
  ws.forEach(append);
  var proto=location.protocol==='https:'?'wss://':'ws://';
  var sock=new WebSocket(proto+location.host+'/api/live');
  sock.onopen=function(){document.getElementById('live').textContent='(live)'}
  sock.onclose=function(){document.getElementById('live').textContent=''}
  sock.onmessage=function(ev){append(JSON.parse(ev.data))}
});
</script>
</body>
</html>
`

const configHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>packmon - configuration</title>
<style>
body{font-family:Arial,sans-serif;background:#f5f5f5;margin:0}
.card{background:white;max-width:560px;margin:32px auto;padding:24px;border-radius:8px;box-shadow:0 2px 4px rgba(0,0,0,0.1)}
h1{margin-top:0;font-size:22px}
.notice{background:#fff3e0;border-left:4px solid #FF9800;padding:8px 12px;color:#6d4c00;font-size:14px}
label{display:block;margin:12px 0 4px;font-size:14px;color:#333}
input{width:100%;padding:6px;box-sizing:border-box;border:1px solid #ccc;border-radius:4px}
fieldset{border:1px solid #ddd;border-radius:4px;margin-top:16px}
legend{font-size:14px;color:#666;padding:0 6px}
button{margin-top:16px;margin-right:8px;padding:8px 20px;border:none;border-radius:4px;cursor:pointer}
.save{background:#4CAF50;color:white}
.cancel{background:#e0e0e0}
</style>
</head>
<body>
<div class="card">
<h1>Configuration</h1>
<p class="notice">Measurement is suspended while configuration mode is active.
Saving or canceling restarts the monitor.</p>
<form id="cfg" action="/api/config" method="post">
<fieldset>
<legend>Battery limits</legend>
<label>Cell voltage min (V)<input name="cell_v_min" id="cell_v_min" type="number" step="any"></label>
<label>Cell voltage max (V)<input name="cell_v_max" id="cell_v_max" type="number" step="any"></label>
<label>Pack voltage min (V)<input name="pack_v_min" id="pack_v_min" type="number" step="any"></label>
<label>Pack voltage max (V)<input name="pack_v_max" id="pack_v_max" type="number" step="any"></label>
<label>Current min (A)<input name="current_min" id="current_min" type="number" step="any"></label>
<label>Current max (A)<input name="current_max" id="current_max" type="number" step="any"></label>
</fieldset>
<fieldset>
<legend>Telemetry</legend>
<label>MQTT broker URI<input name="mqtt_broker" id="mqtt_broker" type="text"></label>
<label>MQTT topic<input name="mqtt_topic" id="mqtt_topic" type="text"></label>
</fieldset>
<button class="save" type="submit">Save and restart</button>
<button class="cancel" type="button" id="cancel">Cancel</button>
</form>
</div>
<script>
fetch('/api/config').then(function(r){return r.json()}).then(function(c){
  document.getElementById('cell_v_min').value=c.battery.cell_v_min;
  document.getElementById('cell_v_max').value=c.battery.cell_v_max;
  document.getElementById('pack_v_min').value=c.battery.pack_v_min;
  document.getElementById('pack_v_max').value=c.battery.pack_v_max;
  document.getElementById('current_min').value=c.battery.current_min;
  document.getElementById('current_max').value=c.battery.current_max;
  document.getElementById('mqtt_broker').value=c.mqtt.broker;
  document.getElementById('mqtt_topic').value=c.mqtt.topic;
});
document.getElementById('cancel').onclick=function(){
  fetch('/api/config/cancel',{method:'POST'}).then(function(){window.location='/'});
};
</script>
</body>
</html>
`

const savedHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Configuration Saved</title>
<meta http-equiv="refresh" content="8;url=/">
<style>
body{font-family:Arial,sans-serif;text-align:center;margin-top:50px;background:#f5f5f5}
.card{background:white;padding:40px;border-radius:8px;box-shadow:0 2px 4px rgba(0,0,0,0.1);max-width:500px;margin:auto}
h1{color:#4CAF50;margin-bottom:20px;font-size:28px}
.mark{color:#4CAF50;font-size:48px;margin-bottom:10px}
p{color:#666;font-size:16px;margin:10px 0}
</style>
</head>
<body>
<div class="card">
<div class="mark">&#10004;</div>
<h1>Configuration Saved</h1>
<p>The monitor is restarting with the new configuration.</p>
<p>Redirecting shortly.</p>
</div>
</body>
</html>
`

const canceledHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Configuration Canceled</title>
<meta http-equiv="refresh" content="8;url=/">
<style>
body{font-family:Arial,sans-serif;text-align:center;margin-top:50px;background:#f5f5f5}
.card{background:white;padding:40px;border-radius:8px;box-shadow:0 2px 4px rgba(0,0,0,0.1);max-width:500px;margin:auto}
h1{color:#FF9800;margin-bottom:20px;font-size:28px}
.mark{color:#FF9800;font-size:48px;margin-bottom:10px}
p{color:#666;font-size:16px;margin:10px 0}
</style>
</head>
<body>
<div class="card">
<div class="mark">&#8634;</div>
<h1>Configuration Canceled</h1>
<p>No changes were saved. The monitor is restarting.</p>
<p>Redirecting shortly.</p>
</div>
</body>
</html>
`
